package cli

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/buddy-works/buddy-cli/internal/api"
	"github.com/buddy-works/buddy-cli/internal/format"
)

func newVariablesCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newVariablesListCmd(app),
		newVariablesShowCmd(app),
		newVariablesSetCmd(app),
		newVariablesDeleteCmd(app),
	}
}

func newVariablesListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars:list",
		Short: "List workspace variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}

			filters := url.Values{}
			if project, _ := cmd.Flags().GetString("project"); project != "" {
				filters.Set("project_name", project)
			}
			if pipeline, _ := cmd.Flags().GetInt("pipeline"); pipeline != 0 {
				filters.Set("pipeline_id", strconv.Itoa(pipeline))
			}

			variables, err := session.Variables(cmd.Context(), workspace, filters)
			if err != nil {
				return err
			}
			return render(cmd, app, variables, func(w io.Writer) {
				if len(variables) == 0 {
					fmt.Fprintln(w, "No variables found.")
					return
				}
				rows := make([][]string, 0, len(variables))
				for _, v := range variables {
					value := v.Value
					if v.Encrypted {
						value = "(encrypted)"
					}
					rows = append(rows, []string{
						strconv.Itoa(v.ID),
						v.Key,
						value,
						v.Type,
						strconv.FormatBool(v.Settable),
					})
				}
				format.Table(w, []string{"ID", "KEY", "VALUE", "TYPE", "SETTABLE"}, rows)
			})
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func newVariablesShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars:show <id>",
		Short: "Show variable details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "variable")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			variable, err := session.Variable(cmd.Context(), workspace, id)
			if err != nil {
				return err
			}
			return render(cmd, app, variable, func(w io.Writer) {
				value := variable.Value
				if variable.Encrypted {
					value = "(encrypted)"
				}
				format.KeyValue(w, [][2]string{
					{"ID", strconv.Itoa(variable.ID)},
					{"Key", variable.Key},
					{"Value", value},
					{"Type", variable.Type},
					{"Description", variable.Description},
					{"Settable", strconv.FormatBool(variable.Settable)},
					{"Encrypted", strconv.FormatBool(variable.Encrypted)},
				}, "Variable")
			})
		},
	}
	addWorkspaceFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func newVariablesSetCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars:set <key> <value>",
		Short: "Create or update a workspace variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}

			variable := api.Variable{Key: args[0], Value: args[1], Type: "VAR"}
			variable.Description, _ = cmd.Flags().GetString("description")
			variable.Settable, _ = cmd.Flags().GetBool("settable")
			variable.Encrypted, _ = cmd.Flags().GetBool("encrypted")
			if t, _ := cmd.Flags().GetString("type"); t != "" {
				variable.Type = t
			}

			// An existing variable with the same key is updated in place.
			existing, err := session.Variables(cmd.Context(), workspace, nil)
			if err != nil {
				return err
			}
			for _, v := range existing {
				if v.Key == variable.Key {
					updated, err := session.UpdateVariable(cmd.Context(), workspace, v.ID, variable)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Variable %s updated (#%d).\n", updated.Key, updated.ID)
					return nil
				}
			}

			created, err := session.CreateVariable(cmd.Context(), workspace, variable)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Variable %s created (#%d).\n", created.Key, created.ID)
			return nil
		},
	}
	cmd.Flags().String("description", "", "Variable description")
	cmd.Flags().String("type", "", "Variable type (VAR or SSH_KEY)")
	cmd.Flags().Bool("settable", false, "Allow pipeline actions to overwrite the value")
	cmd.Flags().Bool("encrypted", false, "Store the value encrypted")
	addWorkspaceFlag(cmd)
	return cmd
}

func newVariablesDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars:delete <id>",
		Short: "Delete a workspace variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "variable")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			if err := session.DeleteVariable(cmd.Context(), workspace, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Variable #%d deleted.\n", id)
			return nil
		},
	}
	addWorkspaceFlag(cmd)
	return cmd
}
