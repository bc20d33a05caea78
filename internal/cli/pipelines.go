package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/buddy-works/buddy-cli/internal/api"
	"github.com/buddy-works/buddy-cli/internal/format"
)

// Polling parameters for --wait: one status check per second, bounded at
// ten minutes.
const (
	waitPollInterval = time.Second
	waitMaxAttempts  = 600
)

func newPipelinesCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newPipelinesListCmd(app),
		newPipelinesShowCmd(app),
		newPipelinesGetCmd(app),
		newPipelinesCreateCmd(app),
		newPipelinesUpdateCmd(app),
		newPipelinesRunCmd(app),
		newPipelinesRetryCmd(app),
		newPipelinesCancelCmd(app),
	}
}

func newPipelinesRetryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines:retry <execution-id>",
		Short: "Retry a finished execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return operateExecution(cmd, app, args[0], "RETRY")
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	return cmd
}

func newPipelinesCancelCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines:cancel <execution-id>",
		Short: "Cancel a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return operateExecution(cmd, app, args[0], "CANCEL")
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	return cmd
}

func newPipelinesListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines:list",
		Short: "List pipelines in the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			project, err := requireProject(cmd, app)
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			pipelines, err := session.Pipelines(cmd.Context(), workspace, project)
			if err != nil {
				return err
			}
			return render(cmd, app, pipelines, func(w io.Writer) {
				if len(pipelines) == 0 {
					fmt.Fprintln(w, "No pipelines found.")
					return
				}
				rows := make([][]string, 0, len(pipelines))
				for _, p := range pipelines {
					rows = append(rows, []string{
						strconv.Itoa(p.ID),
						p.Name,
						p.TriggerMode,
						p.RefName,
						format.Status(p.LastExecutionStatus),
					})
				}
				format.Table(w, []string{"ID", "NAME", "TRIGGER", "REF", "LAST RUN"}, rows)
			})
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func newPipelinesShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines:show <id>",
		Short: "Show pipeline details and its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			project, err := requireProject(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "pipeline")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			pipeline, err := session.Pipeline(cmd.Context(), workspace, project, id)
			if err != nil {
				return err
			}
			actions, err := session.PipelineActions(cmd.Context(), workspace, project, id)
			if err != nil {
				return err
			}

			type pipelineDetail struct {
				api.Pipeline
				Actions []api.Action `json:"actions"`
			}
			detail := pipelineDetail{Pipeline: *pipeline, Actions: actions}

			return render(cmd, app, detail, func(w io.Writer) {
				format.KeyValue(w, [][2]string{
					{"ID", strconv.Itoa(pipeline.ID)},
					{"Name", pipeline.Name},
					{"Trigger", pipeline.TriggerMode},
					{"Ref", pipeline.RefName},
					{"Last run", format.Status(pipeline.LastExecutionStatus)},
					{"URL", pipeline.HTMLURL},
				}, "Pipeline")
				if len(actions) == 0 {
					return
				}
				fmt.Fprintln(w)
				rows := make([][]string, 0, len(actions))
				for _, a := range actions {
					rows = append(rows, []string{strconv.Itoa(a.ID), a.Name, a.Type})
				}
				format.Table(w, []string{"ID", "ACTION", "TYPE"}, rows)
			})
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func newPipelinesRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines:run <id>",
		Short: "Trigger a pipeline execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			project, err := requireProject(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "pipeline")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}

			req := api.RunRequest{}
			req.Comment, _ = cmd.Flags().GetString("comment")
			if revision, _ := cmd.Flags().GetString("revision"); revision != "" {
				req.ToRevision = &api.Revision{Revision: revision}
			}

			execution, err := session.RunExecution(cmd.Context(), workspace, project, id, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Execution #%d started (%s).\n", execution.ID, execution.Status)
			if execution.HTMLURL != "" {
				fmt.Fprintf(out, "Details: %s\n", execution.HTMLURL)
			}

			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				final, err := waitForExecution(cmd.Context(), out, session, workspace, project, id, execution.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Execution #%d finished: %s\n", final.ID, format.Status(final.Status))
				if final.Status != "SUCCESSFUL" {
					return fmt.Errorf("execution finished with status %s", final.Status)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("revision", "", "Run against a specific commit")
	cmd.Flags().String("comment", "", "Comment attached to the execution")
	cmd.Flags().Bool("wait", false, "Block until the execution reaches a terminal status")
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	return cmd
}

// waitForExecution polls until the execution leaves the running states or
// the attempt budget is spent. A progress dot prints every ten polls.
func waitForExecution(ctx context.Context, w io.Writer, session *api.Session, workspace, project string, pipelineID, executionID int) (*api.Execution, error) {
	for attempt := 1; attempt <= waitMaxAttempts; attempt++ {
		execution, err := session.Execution(ctx, workspace, project, pipelineID, executionID)
		if err != nil {
			return nil, err
		}
		if isTerminalStatus(execution.Status) {
			fmt.Fprintln(w)
			return execution, nil
		}
		if attempt%10 == 0 {
			fmt.Fprint(w, ".")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
	fmt.Fprintln(w)
	return nil, fmt.Errorf("execution #%d still running after %s", executionID,
		time.Duration(waitMaxAttempts)*waitPollInterval)
}

func isTerminalStatus(status string) bool {
	switch status {
	case "INPROGRESS", "ENQUEUED", "INITIAL":
		return false
	}
	return true
}
