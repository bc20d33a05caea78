package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Execute runs the CLI and returns the final error, if any. Ctrl-C cancels
// the whole invocation, including a pending login callback wait.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp()
	return NewRootCmd(app).ExecuteContext(ctx)
}

// NewRootCmd builds the full command tree against app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "buddy",
		Short:         "Command-line client for the Buddy CI/CD platform",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newLoginCmd(app),
		newLogoutCmd(app),
	)
	root.AddCommand(newConfigCmds(app)...)
	root.AddCommand(newProjectsCmds(app)...)
	root.AddCommand(newPipelinesCmds(app)...)
	root.AddCommand(newExecutionsCmds(app)...)
	root.AddCommand(newActionsCmds(app)...)
	root.AddCommand(newVariablesCmds(app)...)
	root.AddCommand(newWebhooksCmds(app)...)

	return root
}
