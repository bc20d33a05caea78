package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/buddy-works/buddy-cli/internal/config"
	"github.com/buddy-works/buddy-cli/internal/format"
)

// addOutputFlags registers the rendering flags shared by data commands.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().String("format", "", "Output format: table, json, or yaml")
}

// addWorkspaceFlag registers -w/--workspace.
func addWorkspaceFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("workspace", "w", "", "Workspace name")
}

// addProjectFlag registers -p/--project.
func addProjectFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("project", "p", "", "Project name")
}

// addPipelineFlag registers --pipeline.
func addPipelineFlag(cmd *cobra.Command) {
	cmd.Flags().Int("pipeline", 0, "Pipeline ID")
}

// requireWorkspace resolves the workspace from the flag or config, with
// remediation text when neither is set.
func requireWorkspace(cmd *cobra.Command, app *App) (string, error) {
	if ws, _ := cmd.Flags().GetString("workspace"); ws != "" {
		return ws, nil
	}
	if ws := app.Store.Get(config.KeyWorkspace); ws != "" {
		return ws, nil
	}
	return "", errors.New(
		"no workspace specified; use --workspace, set BUDDY_WORKSPACE, or run 'buddy config:set workspace <name>'",
	)
}

// requireProject resolves the project from the flag or config.
func requireProject(cmd *cobra.Command, app *App) (string, error) {
	if p, _ := cmd.Flags().GetString("project"); p != "" {
		return p, nil
	}
	if p := app.Store.Get(config.KeyProject); p != "" {
		return p, nil
	}
	return "", errors.New(
		"no project specified; use --project, set BUDDY_PROJECT, or run 'buddy config:set project <name>'",
	)
}

// requirePipeline resolves the pipeline ID from --pipeline.
func requirePipeline(cmd *cobra.Command) (int, error) {
	id, _ := cmd.Flags().GetInt("pipeline")
	if id == 0 {
		return 0, errors.New("pipeline ID is required; use --pipeline=<id>")
	}
	return id, nil
}

// resolveFormat picks the output format: --json wins, then --format, then
// the default_format config key, then table.
func resolveFormat(cmd *cobra.Command, store *config.Store) (format.Format, error) {
	if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
		return format.FormatJSON, nil
	}
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		return format.ParseFormat(f)
	}
	return format.ParseFormat(store.Get(config.KeyDefaultFormat))
}

// render writes v in the resolved format; table drives the human-readable
// rendering.
func render(cmd *cobra.Command, app *App, v any, table func(w io.Writer)) error {
	f, err := resolveFormat(cmd, app.Store)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	switch f {
	case format.FormatJSON:
		return format.JSON(w, v)
	case format.FormatYAML:
		return format.YAML(w, v)
	default:
		table(w)
		return nil
	}
}

// parseID converts a positional ID argument.
func parseID(arg, what string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, arg)
	}
	return id, nil
}

// formatTime reformats an API timestamp for display, or "-" when absent.
func formatTime(s string) string {
	if s == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// maskToken shortens a secret for display: first and last four characters.
func maskToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:4] + "..." + token[len(token)-4:]
}
