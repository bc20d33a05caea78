package cli

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buddy-works/buddy-cli/internal/api"
	"github.com/buddy-works/buddy-cli/internal/format"
)

func newExecutionsCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newExecutionsListCmd(app),
		newExecutionsShowCmd(app),
		newExecutionsFailedCmd(app),
	}
}

func newExecutionsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions:list",
		Short: "List executions of a pipeline",
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
			executions, err := session.Executions(cmd.Context(), workspace, project, pipelineID)
			if err != nil {
				return err
			}
			return render(cmd, app, executions, func(w io.Writer) {
				if len(executions) == 0 {
					fmt.Fprintln(w, "No executions found.")
					return
				}
				rows := make([][]string, 0, len(executions))
				for _, e := range executions {
					rows = append(rows, []string{
						strconv.Itoa(e.ID),
						format.Status(e.Status),
						e.Branch.Name,
						shortRevision(e.ToRevision.Revision),
						formatTime(e.StartDate),
						e.Comment,
					})
				}
				format.Table(w, []string{"ID", "STATUS", "BRANCH", "REVISION", "STARTED", "COMMENT"}, rows)
			})
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func newExecutionsShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions:show <id>",
		Short: "Show execution details with per-action results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, project, pipelineID, err := requireTarget(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "execution")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			execution, err := session.Execution(cmd.Context(), workspace, project, pipelineID, id)
			if err != nil {
				return err
			}
			return render(cmd, app, execution, func(w io.Writer) {
				printExecution(w, execution)
			})
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

func operateExecution(cmd *cobra.Command, app *App, arg, operation string) error {
	workspace, project, pipelineID, err := requireTarget(cmd, app)
	if err != nil {
		return err
	}
	id, err := parseID(arg, "execution")
	if err != nil {
		return err
	}
	session, err := app.Session()
	if err != nil {
		return err
	}

	var execution *api.Execution
	switch operation {
	case "RETRY":
		execution, err = session.RetryExecution(cmd.Context(), workspace, project, pipelineID, id)
	case "CANCEL":
		execution, err = session.CancelExecution(cmd.Context(), workspace, project, pipelineID, id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Execution #%d is now %s.\n", execution.ID, execution.Status)
	return nil
}

func newExecutionsFailedCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions:failed <execution-id>",
		Short: "Show failed action details from an execution",
		Long: `Show details and logs for failed actions in an execution.

Filters the execution to only the actions that failed, then fetches and
displays the full log of each to help diagnose the issue. With --analyze
the logs are matched against known error patterns and grouped into an
error summary instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, project, pipelineID, err := requireTarget(cmd, app)
			if err != nil {
				return err
			}
			executionID, err := parseID(args[0], "execution")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			execution, err := session.Execution(cmd.Context(), workspace, project, pipelineID, executionID)
			if err != nil {
				return err
			}

			failed := make([]api.ActionExecution, 0, len(execution.ActionExecutions))
			for _, ae := range execution.ActionExecutions {
				if ae.Status == "FAILED" {
					failed = append(failed, ae)
				}
			}

			return render(cmd, app, failed, func(w io.Writer) {
				if len(failed) == 0 {
					fmt.Fprintln(w, "No failed actions in this execution.")
					return
				}
				if analyze, _ := cmd.Flags().GetBool("analyze"); analyze {
					printFailureAnalysis(cmd.Context(), w, session, workspace, project, pipelineID, executionID, failed)
					return
				}
				for _, ae := range failed {
					fmt.Fprintln(w)
					fmt.Fprintf(w, "Failed Action: %s\n", ae.Action.Name)
					format.KeyValue(w, [][2]string{
						{"Type", ae.Action.Type},
						{"Started", formatTime(ae.StartDate)},
						{"Finished", formatTime(ae.FinishDate)},
					}, "")

					if ae.Action.ID == 0 {
						continue
					}
					detail, err := session.ActionExecution(cmd.Context(), workspace, project, pipelineID, executionID, ae.Action.ID)
					if err != nil || len(detail.Log) == 0 {
						continue
					}
					fmt.Fprintln(w)
					fmt.Fprintln(w, "Logs:")
					for _, line := range detail.Log {
						fmt.Fprintln(w, line)
					}
				}
			})
		},
	}
	cmd.Flags().Bool("analyze", false, "Group log errors into a categorized summary")
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	addPipelineFlag(cmd)
	addOutputFlags(cmd)
	return cmd
}

type logError struct {
	category string
	detail   string
}

type failurePattern struct {
	re       *regexp.Regexp
	category string
}

// failurePatterns mirror the error classes the web UI surfaces. First match
// per line wins; the first capture group, when present, becomes the detail.
var failurePatterns = []failurePattern{
	{regexp.MustCompile(`(?i)\b(?:error|fatal|exception):\s*(.+)`), "Error"},
	{regexp.MustCompile(`(?i)^\s*Error:\s*(.+)`), "Error"},
	{regexp.MustCompile(`exit(?:ed)?\s+(?:with\s+)?(?:code\s+)?(\d+)`), "Exit Code"},
	{regexp.MustCompile(`return(?:ed)?\s+(?:code\s+)?(\d+)`), "Return Code"},
	{regexp.MustCompile(`(?i)build\s+failed`), "Build Failed"},
	{regexp.MustCompile(`(?i)compilation\s+(?:error|failed)`), "Compilation Error"},
	{regexp.MustCompile(`(?i)(\d+)\s+(?:test[s]?\s+)?failed`), "Test Failures"},
	{regexp.MustCompile(`(?i)FAIL(?:ED)?\s+(.+)`), "Test Failed"},
	{regexp.MustCompile(`(?i)(?:could\s+not\s+(?:find|resolve)|missing)\s+(?:dependency|package|module)\s*:?\s*(.+)`), "Missing Dependency"},
	{regexp.MustCompile(`(?i)npm\s+ERR!\s*(.+)`), "NPM Error"},
	{regexp.MustCompile(`(?i)composer\s+(?:error|failed)`), "Composer Error"},
	{regexp.MustCompile(`(?i)permission\s+denied`), "Permission Denied"},
	{regexp.MustCompile(`(?i)access\s+denied`), "Access Denied"},
	{regexp.MustCompile(`(?i)authentication\s+(?:failed|error|required)`), "Auth Error"},
	{regexp.MustCompile(`(?i)connection\s+(?:refused|timed?\s*out|failed)`), "Connection Error"},
	{regexp.MustCompile(`(?i)timeout\s+(?:exceeded|error)`), "Timeout"},
	{regexp.MustCompile(`(?i)out\s+of\s+memory`), "Out of Memory"},
	{regexp.MustCompile(`(?i)disk\s+(?:full|space)`), "Disk Space"},
}

// extractLogErrors classifies log lines; at most one category per line.
func extractLogErrors(log []string) []logError {
	var errs []logError
	for _, line := range log {
		for _, p := range failurePatterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			detail := strings.TrimSpace(line)
			if len(m) > 1 && m[1] != "" {
				detail = m[1]
			}
			if len(detail) > 200 {
				detail = detail[:200]
			}
			errs = append(errs, logError{category: p.category, detail: detail})
			break
		}
	}
	return errs
}

// printFailureAnalysis fetches the log of every failed action, classifies
// the error lines, and prints a per-category summary with duplicates
// collapsed.
func printFailureAnalysis(ctx context.Context, w io.Writer, session *api.Session, workspace, project string, pipelineID, executionID int, failed []api.ActionExecution) {
	byCategory := make(map[string][][2]string) // category -> (action, detail)

	add := func(category, action, detail string) {
		byCategory[category] = append(byCategory[category], [2]string{action, detail})
	}

	for _, ae := range failed {
		name := ae.Action.Name
		if ae.Action.ID == 0 {
			add("No Logs", name, "Action failed but no action ID available")
			continue
		}
		detail, err := session.ActionExecution(ctx, workspace, project, pipelineID, executionID, ae.Action.ID)
		if err != nil {
			add("No Logs", name, "Could not fetch logs: "+err.Error())
			continue
		}
		if len(detail.Log) == 0 {
			add("No Logs", name, "Action failed but no logs available")
			continue
		}
		errs := extractLogErrors(detail.Log)
		if len(errs) == 0 {
			tail := detail.Log
			if len(tail) > 5 {
				tail = tail[len(tail)-5:]
			}
			add("Unidentified", name, strings.Join(tail, "\n"))
			continue
		}
		for _, e := range errs {
			add(e.category, name, e.detail)
		}
	}

	fmt.Fprintln(w, "ERROR SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 40))

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, category := range categories {
		entries := byCategory[category]
		plural := ""
		if len(entries) > 1 {
			plural = "s"
		}
		fmt.Fprintf(w, "\n%s (%d occurrence%s):\n", category, len(entries), plural)

		seen := make(map[string]bool)
		for _, e := range entries {
			key := e[0] + "|" + truncate(e[1], 50)
			if seen[key] {
				continue
			}
			seen[key] = true
			fmt.Fprintf(w, "  [%s] %s\n", e[0], e[1])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "FAILED ACTIONS:")
	for _, ae := range failed {
		actionType := ae.Action.Type
		if actionType == "" {
			actionType = "-"
		}
		fmt.Fprintf(w, "  - %s (%s)\n", ae.Action.Name, actionType)
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func printExecution(w io.Writer, e *api.Execution) {
	format.KeyValue(w, [][2]string{
		{"ID", strconv.Itoa(e.ID)},
		{"Status", format.Status(e.Status)},
		{"Branch", e.Branch.Name},
		{"Revision", shortRevision(e.ToRevision.Revision)},
		{"Started", formatTime(e.StartDate)},
		{"Finished", formatTime(e.FinishDate)},
		{"Comment", e.Comment},
		{"URL", e.HTMLURL},
	}, "Execution")
	if len(e.ActionExecutions) == 0 {
		return
	}
	fmt.Fprintln(w)
	rows := make([][]string, 0, len(e.ActionExecutions))
	for _, ae := range e.ActionExecutions {
		rows = append(rows, []string{
			ae.Action.Name,
			format.Status(ae.Status),
			formatTime(ae.StartDate),
			formatTime(ae.FinishDate),
		})
	}
	format.Table(w, []string{"ACTION", "STATUS", "STARTED", "FINISHED"}, rows)
}

func shortRevision(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// requireTarget resolves the workspace, project, and pipeline every
// execution command needs.
func requireTarget(cmd *cobra.Command, app *App) (string, string, int, error) {
	workspace, err := requireWorkspace(cmd, app)
	if err != nil {
		return "", "", 0, err
	}
	project, err := requireProject(cmd, app)
	if err != nil {
		return "", "", 0, err
	}
	pipelineID, err := requirePipeline(cmd)
	if err != nil {
		return "", "", 0, err
	}
	return workspace, project, pipelineID, nil
}
