package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buddy-works/buddy-cli/internal/config"
	"github.com/buddy-works/buddy-cli/internal/format"
)

func newConfigCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newConfigShowCmd(app),
		newConfigSetCmd(app),
		newConfigClearCmd(app),
		newConfigValidateCmd(app),
	}
}

func newConfigShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config:show",
		Short: "Show current configuration and where each value comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd, app, app.Store.All(), func(w io.Writer) {
				entries := app.Store.AllWithSources()
				if len(entries) == 0 {
					fmt.Fprintln(w, "No configuration set.")
				}
				keys := make([]string, 0, len(entries))
				for k := range entries {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					e := entries[k]
					value := e.Value
					if k == config.KeyToken || k == config.KeyRefreshToken || k == config.KeyClientSecret {
						value = maskToken(value)
					}
					source := string(e.Source)
					if e.Path != "" {
						source = fmt.Sprintf("%s: %s", source, e.Path)
					}
					fmt.Fprintf(w, "%-16s %-40s [%s]\n", k, value, source)
				}
				if path := app.Store.Path(); path != "" {
					fmt.Fprintf(w, "\nConfig file: %s\n", path)
				}
			})
		},
	}
	addOutputFlags(cmd)
	return cmd
}

func newConfigSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config:set <key> <value>",
		Short: "Set a configuration value",
		Long: "Set a configuration value.\n\nValid keys: " +
			strings.Join(config.ValidKeys, ", "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			valid := false
			for _, k := range config.ValidKeys {
				if k == key {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("unknown config key %q (valid keys: %s)",
					key, strings.Join(config.ValidKeys, ", "))
			}
			app.Store.Set(key, value)
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s.\n", key)
			return nil
		},
	}
}

func newConfigClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config:clear",
		Short: "Remove all stored configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Store.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration cleared.")
			return nil
		},
	}
}

type validationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newConfigValidateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config:validate",
		Short: "Check that configuration is complete enough to use the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := validationReport{Errors: []string{}, Warnings: []string{}}

			if app.Store.Get(config.KeyToken) == "" {
				report.Errors = append(report.Errors,
					"no API token configured; run 'buddy login' or set BUDDY_TOKEN")
			}
			if app.Store.Get(config.KeyWorkspace) == "" {
				report.Errors = append(report.Errors,
					"no workspace configured; run 'buddy config:set workspace <name>' or set BUDDY_WORKSPACE")
			}
			if app.Store.Get(config.KeyProject) == "" {
				report.Warnings = append(report.Warnings,
					"no default project configured; commands will need --project")
			}

			if testAPI, _ := cmd.Flags().GetBool("test-api"); testAPI && len(report.Errors) == 0 {
				session, err := app.Session()
				if err != nil {
					report.Errors = append(report.Errors, err.Error())
				} else if _, err := session.Workspaces(cmd.Context()); err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("API check failed: %v", err))
				}
			}
			report.Valid = len(report.Errors) == 0

			fmtOut, err := resolveFormat(cmd, app.Store)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if fmtOut != format.FormatTable {
				if err := render(cmd, app, report, nil); err != nil {
					return err
				}
			} else {
				for _, e := range report.Errors {
					fmt.Fprintf(out, "error: %s\n", e)
				}
				for _, w := range report.Warnings {
					fmt.Fprintf(out, "warning: %s\n", w)
				}
				if report.Valid {
					fmt.Fprintln(out, "Configuration is valid.")
				}
			}
			if !report.Valid {
				return errors.New("configuration is not valid")
			}
			return nil
		},
	}
	cmd.Flags().Bool("test-api", false, "Also verify the token against the API")
	addOutputFlags(cmd)
	return cmd
}
