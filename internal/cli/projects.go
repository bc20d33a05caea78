package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/buddy-works/buddy-cli/internal/format"
)

func newProjectsCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newProjectsListCmd(app),
		newProjectsShowCmd(app),
	}
}

func newProjectsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects:list",
		Short: "List projects in the workspace",
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
			projects, err := session.Projects(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			return render(cmd, app, projects, func(w io.Writer) {
				if len(projects) == 0 {
					fmt.Fprintln(w, "No projects found.")
					return
				}
				rows := make([][]string, 0, len(projects))
				for _, p := range projects {
					rows = append(rows, []string{p.Name, p.DisplayName, p.Status})
				}
				format.Table(w, []string{"NAME", "DISPLAY NAME", "STATUS"}, rows)
			})
		},
	}
	addWorkspaceFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func newProjectsShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects:show <name>",
		Short: "Show project details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			project, err := session.Project(cmd.Context(), workspace, args[0])
			if err != nil {
				return err
			}
			return render(cmd, app, project, func(w io.Writer) {
				format.KeyValue(w, [][2]string{
					{"Name", project.Name},
					{"Display name", project.DisplayName},
					{"Status", project.Status},
					{"Created", formatTime(project.CreateDate)},
					{"URL", project.HTMLURL},
				}, "Project")
			})
		},
	}
	addWorkspaceFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}
