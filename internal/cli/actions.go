package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/buddy-works/buddy-cli/internal/format"
)

func newActionsCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newActionsListCmd(app),
		newActionsShowCmd(app),
		newActionsCreateCmd(app),
		newActionsUpdateCmd(app),
		newActionsDeleteCmd(app),
	}
}

func newActionsShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions:show <id>",
		Short: "Show action details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, project, pipelineID, err := requireTarget(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "action")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			action, err := session.PipelineAction(cmd.Context(), workspace, project, pipelineID, id)
			if err != nil {
				return err
			}
			return render(cmd, app, action, func(w io.Writer) {
				pairs := [][2]string{
					{"ID", strconv.Itoa(action.ID)},
					{"Name", action.Name},
					{"Type", action.Type},
					{"Trigger", action.TriggerTime},
				}
				if action.DockerImageName != "" {
					tag := action.DockerImageTag
					if tag == "" {
						tag = "latest"
					}
					pairs = append(pairs, [2]string{"Docker image", action.DockerImageName + ":" + tag})
				}
				if action.Shell != "" {
					pairs = append(pairs, [2]string{"Shell", action.Shell})
				}
				if action.WorkingDirectory != "" {
					pairs = append(pairs, [2]string{"Working dir", action.WorkingDirectory})
				}
				format.KeyValue(w, pairs, "Action: "+action.Name)

				for _, section := range []struct {
					title    string
					commands []string
				}{
					{"Setup Commands:", action.SetupCommands},
					{"Execute Commands:", action.ExecuteCommands},
				} {
					if len(section.commands) == 0 {
						continue
					}
					fmt.Fprintln(w)
					fmt.Fprintln(w, section.title)
					for _, c := range section.commands {
						fmt.Fprintf(w, "  %s\n", c)
					}
				}
			})
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func newActionsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions:list",
		Short: "List actions of a pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, project, pipelineID, err := requireTarget(cmd, app)
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			actions, err := session.PipelineActions(cmd.Context(), workspace, project, pipelineID)
			if err != nil {
				return err
			}
			return render(cmd, app, actions, func(w io.Writer) {
				if len(actions) == 0 {
					fmt.Fprintln(w, "No actions found.")
					return
				}
				rows := make([][]string, 0, len(actions))
				for _, a := range actions {
					rows = append(rows, []string{strconv.Itoa(a.ID), a.Name, a.Type})
				}
				format.Table(w, []string{"ID", "NAME", "TYPE"}, rows)
			})
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

// parseActionPayload decodes the raw JSON action definition passed on the
// command line. Buddy action schemas vary per type, so the payload is kept
// as an open map.
func parseActionPayload(raw string) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("invalid action JSON: %w", err)
	}
	return payload, nil
}

func newActionsCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions:create <json>",
		Short: "Add an action to a pipeline from a JSON definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, project, pipelineID, err := requireTarget(cmd, app)
			if err != nil {
				return err
			}
			payload, err := parseActionPayload(args[0])
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			action, err := session.CreateAction(cmd.Context(), workspace, project, pipelineID, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Action #%d (%s) created.\n", action.ID, action.Name)
			return nil
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	return cmd
}

func newActionsUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions:update <id> <json>",
		Short: "Update an action from a JSON definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, project, pipelineID, err := requireTarget(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "action")
			if err != nil {
				return err
			}
			payload, err := parseActionPayload(args[1])
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			action, err := session.UpdateAction(cmd.Context(), workspace, project, pipelineID, id, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Action #%d (%s) updated.\n", action.ID, action.Name)
			return nil
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	return cmd
}

func newActionsDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions:delete <id>",
		Short: "Remove an action from a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, project, pipelineID, err := requireTarget(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "action")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			if err := session.DeleteAction(cmd.Context(), workspace, project, pipelineID, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Action #%d deleted.\n", id)
			return nil
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	return cmd
}
