// Package format renders API data as aligned tables, JSON, or YAML.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"gopkg.in/yaml.v3"
)

// Format selects the output rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatYAML:
		return Format(s), nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: table, json, yaml)", s)
	}
}

// JSON writes v as pretty-printed JSON with a trailing newline.
func JSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// YAML writes v as YAML with 2-space indentation.
func YAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

var (
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleKey     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleQueued  = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Status colors an execution status the way the web UI does.
func Status(status string) string {
	switch status {
	case "SUCCESSFUL":
		return styleOK.Render(status)
	case "FAILED", "TERMINATED":
		return styleFail.Render(status)
	case "INPROGRESS":
		return styleRunning.Render(status)
	case "ENQUEUED":
		return styleQueued.Render(status)
	case "SKIPPED":
		return styleDim.Render(status)
	default:
		return status
	}
}

// KeyValue writes an aligned two-column listing, optionally under a title.
func KeyValue(w io.Writer, pairs [][2]string, title string) {
	if title != "" {
		fmt.Fprintln(w, styleHeader.Render(title))
		fmt.Fprintln(w)
	}

	maxKey := 0
	for _, p := range pairs {
		if len(p[0]) > maxKey {
			maxKey = len(p[0])
		}
	}
	for _, p := range pairs {
		fmt.Fprintf(w, "  %s  %s\n", styleKey.Render(pad(p[0], maxKey)), p[1])
	}
}

// Table writes a header row and aligned columns. Column widths are computed
// from the longest visible cell; styled cells are measured by lipgloss so
// ANSI sequences don't skew the padding.
func Table(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(pad(h, widths[i]))
		if i < len(headers)-1 {
			b.WriteString("  ")
		}
	}
	fmt.Fprintln(w, styleHeader.Render(b.String()))

	for _, row := range rows {
		b.Reset()
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
			}
		}
		fmt.Fprintln(w, b.String())
	}
}

func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
