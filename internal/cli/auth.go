package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/buddy-works/buddy-cli/internal/config"
	"github.com/buddy-works/buddy-cli/internal/oauth"
	"github.com/buddy-works/buddy-cli/internal/tui"
)

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Buddy via OAuth",
		Long: `Authenticate with Buddy using the OAuth authorization-code flow.

A local callback server receives the browser redirect; the authorization
code is then exchanged for an access token and saved to the config file.

Create an OAuth app at: https://app.buddy.works/my-apps
Set its callback URL to: http://127.0.0.1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, app)
		},
	}
	cmd.Flags().String("client-id", "", "OAuth client ID")
	cmd.Flags().String("client-secret", "", "OAuth client secret")
	cmd.Flags().Int("port", 0, "Callback server port (default: first free port from 8085)")
	cmd.Flags().Bool("no-browser", false, "Print URL instead of opening browser")
	cmd.Flags().Bool("test", false, "Verify the saved token against the API after login")
	return cmd
}

func runLogin(cmd *cobra.Command, app *App) error {
	clientID, _ := cmd.Flags().GetString("client-id")
	if clientID == "" {
		clientID = app.Store.Get(config.KeyClientID)
	}
	clientSecret, _ := cmd.Flags().GetString("client-secret")
	if clientSecret == "" {
		clientSecret = app.Store.Get(config.KeyClientSecret)
	}

	if clientID == "" || clientSecret == "" {
		out := cmd.ErrOrStderr()
		fmt.Fprintln(out, "OAuth credentials required.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Provide credentials via:")
		fmt.Fprintln(out, "  --client-id and --client-secret flags")
		fmt.Fprintln(out, "  BUDDY_CLIENT_ID and BUDDY_CLIENT_SECRET env vars")
		fmt.Fprintln(out, "  buddy config:set client_id <id> && buddy config:set client_secret <secret>")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Create an OAuth app at: https://app.buddy.works/my-apps")
		fmt.Fprintln(out, "Set callback URL to: http://127.0.0.1")
		return errors.New("missing OAuth credentials")
	}

	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		var err error
		port, err = oauth.FindAvailablePort()
		if err != nil {
			return fmt.Errorf("could not find available port for callback server: %w", err)
		}
	}

	// Bind before opening the browser so the redirect always has a target.
	ln, err := oauth.Listen(port)
	if err != nil {
		return fmt.Errorf("port %d unavailable (use --port to pick another): %w", port, err)
	}
	defer ln.Close()

	client := oauth.NewClient(clientID, clientSecret)
	state := oauth.GenerateState()
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d%s", port, oauth.CallbackPath)
	authorizeURL := client.AuthorizeURL(redirectURI, state, nil)

	noBrowser, _ := cmd.Flags().GetBool("no-browser")
	d, done := newLoginDisplayer(cmd)
	defer done()

	d.Banner()

	browserOpened := false
	if !noBrowser {
		browserOpened = openBrowser(authorizeURL) == nil
	}
	d.AuthorizeURLReady(authorizeURL, browserOpened)
	d.WaitingForCallback(time.Now().Add(oauth.DefaultCallbackTimeout))

	result, err := oauth.WaitForCallback(cmd.Context(), ln, state, oauth.DefaultCallbackTimeout)
	if err != nil {
		d.Fatal(err)
		return fmt.Errorf("authorization failed: %w", err)
	}
	d.CallbackReceived()

	d.Exchanging()
	token, err := client.ExchangeCode(cmd.Context(), result.Code, redirectURI)
	if err != nil {
		d.Fatal(err)
		return fmt.Errorf("failed to get access token: %w", err)
	}

	app.Store.Set(config.KeyToken, token.AccessToken)
	if token.RefreshToken != "" {
		app.Store.Set(config.KeyRefreshToken, token.RefreshToken)
	}
	if path := app.Store.Path(); path != "" {
		d.TokenSaved(path)
	} else {
		d.TokenSaveFailed(errors.New("home directory not found; token kept for this invocation only"))
	}

	if test, _ := cmd.Flags().GetBool("test"); test {
		verifyLogin(cmd.Context(), app, d)
	}

	preview := token.AccessToken
	if len(preview) > 10 {
		preview = preview[:10]
	}
	d.LoginOK(preview)
	return nil
}

// verifyLogin checks the fresh token by listing workspaces. Failure is a
// warning, not a login failure: the token was issued and saved.
func verifyLogin(ctx context.Context, app *App, d tui.Displayer) {
	d.Verifying()
	session, err := app.Session()
	if err != nil {
		d.VerifyFailed(err)
		return
	}
	workspaces, err := session.Workspaces(ctx)
	if err != nil {
		d.VerifyFailed(err)
		return
	}
	d.VerifyOK(len(workspaces))
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear stored authentication credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Store.Remove(config.KeyToken)
			app.Store.Remove(config.KeyRefreshToken)
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out successfully.")
			return nil
		},
	}
}

// newLoginDisplayer picks the interactive TUI when stderr is a terminal,
// plain text otherwise. The returned func shuts the TUI down and must be
// called before the command finishes.
func newLoginDisplayer(cmd *cobra.Command) (tui.Displayer, func()) {
	if !isTTY() {
		return tui.NewPlainDisplayer(cmd.ErrOrStderr()), func() {}
	}

	// Render to stderr so stdout stays pipeable. WithInput(nil) disables
	// keyboard input; Ctrl+C is handled by the signal context.
	p := tea.NewProgram(tui.NewModel(), tea.WithOutput(os.Stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	return tui.NewProgramDisplayer(p), func() {
		p.Quit()
		wg.Wait()
	}
}

// isTTY reports whether stderr is a character device (interactive
// terminal). Stderr is checked because all login progress renders there.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// openBrowser launches the platform browser for url.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
