package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buddy-works/buddy-cli/internal/api"
	"github.com/buddy-works/buddy-cli/internal/format"
)

func newWebhooksCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newWebhooksListCmd(app),
		newWebhooksShowCmd(app),
		newWebhooksCreateCmd(app),
		newWebhooksUpdateCmd(app),
		newWebhooksDeleteCmd(app),
	}
}

func newWebhooksUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks:update <id>",
		Short: "Update a workspace webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "webhook")
			if err != nil {
				return err
			}

			// Only the fields actually passed are patched.
			var patch api.Webhook
			if targetURL, _ := cmd.Flags().GetString("url"); targetURL != "" {
				patch.TargetURL = targetURL
			}
			if events, _ := cmd.Flags().GetStringSlice("events"); len(events) > 0 {
				patch.Events = events
			}
			if secret, _ := cmd.Flags().GetString("secret"); secret != "" {
				patch.SecretKey = secret
			}

			session, err := app.Session()
			if err != nil {
				return err
			}
			webhook, err := session.UpdateWebhook(cmd.Context(), workspace, id, patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook #%d updated.\n", webhook.ID)
			return nil
		},
	}
	cmd.Flags().String("url", "", "New target URL")
	cmd.Flags().StringSlice("events", nil, "New event subscription list")
	cmd.Flags().String("secret", "", "New secret key")
	addWorkspaceFlag(cmd)
	return cmd
}

func newWebhooksListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks:list",
		Short: "List workspace webhooks",
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
			webhooks, err := session.Webhooks(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			return render(cmd, app, webhooks, func(w io.Writer) {
				if len(webhooks) == 0 {
					fmt.Fprintln(w, "No webhooks found.")
					return
				}
				rows := make([][]string, 0, len(webhooks))
				for _, h := range webhooks {
					rows = append(rows, []string{
						strconv.Itoa(h.ID),
						h.TargetURL,
						strings.Join(h.Events, ","),
					})
				}
				format.Table(w, []string{"ID", "TARGET URL", "EVENTS"}, rows)
			})
		},
	}
	addWorkspaceFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func newWebhooksShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks:show <id>",
		Short: "Show webhook details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "webhook")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			webhook, err := session.Webhook(cmd.Context(), workspace, id)
			if err != nil {
				return err
			}
			return render(cmd, app, webhook, func(w io.Writer) {
				secret := webhook.SecretKey
				if secret != "" {
					secret = maskToken(secret)
				}
				format.KeyValue(w, [][2]string{
					{"ID", strconv.Itoa(webhook.ID)},
					{"Target URL", webhook.TargetURL},
					{"Events", strings.Join(webhook.Events, ",")},
					{"Secret", secret},
				}, "Webhook")
			})
		},
	}
	addWorkspaceFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func newWebhooksCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks:create",
		Short: "Create a workspace webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			targetURL, _ := cmd.Flags().GetString("url")
			events, _ := cmd.Flags().GetStringSlice("events")
			secret, _ := cmd.Flags().GetString("secret")
			if targetURL == "" {
				return fmt.Errorf("--url is required")
			}
			if len(events) == 0 {
				return fmt.Errorf("--events is required (e.g. --events PUSH,EXECUTION_FINISHED)")
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			webhook, err := session.CreateWebhook(cmd.Context(), workspace, api.Webhook{
				TargetURL: targetURL,
				Events:    events,
				SecretKey: secret,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook #%d created for %s.\n", webhook.ID, webhook.TargetURL)
			return nil
		},
	}
	cmd.Flags().String("url", "", "Target URL to deliver events to")
	cmd.Flags().StringSlice("events", nil, "Events to subscribe to")
	cmd.Flags().String("secret", "", "Secret key sent with each delivery")
	addWorkspaceFlag(cmd)
	return cmd
}

func newWebhooksDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks:delete <id>",
		Short: "Delete a workspace webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "webhook")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			if err := session.DeleteWebhook(cmd.Context(), workspace, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook #%d deleted.\n", id)
			return nil
		},
	}
	addWorkspaceFlag(cmd)
	return cmd
}
