package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// tickMsg is fired every second to update the countdown timer.
type tickMsg time.Time

// state represents the current phase of the login flow.
type state int

const (
	stateInit       state = iota
	stateWaiting          // listener up, waiting for the browser redirect
	stateExchanging       // exchanging code for token
	stateSuccess          // all done
	stateError            // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// Model is the BubbleTea model for the login TUI.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	authorizeURL  string
	browserOpened bool
	deadline      time.Time
	remaining     time.Duration

	tokenPreview string
	errMsg       string

	statusLines []statusLine
}

// Lipgloss styles — defined once at package level.
var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.remaining = max(time.Until(m.deadline), 0)
		if m.remaining > 0 {
			return m, tickAfterSecond()
		}
		return m, nil

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	// ── Login flow messages ──────────────────────────────────────────────────

	case MsgBanner:
		return m, nil

	case MsgAuthorizeURLReady:
		m.authorizeURL = msg.URL
		m.browserOpened = msg.BrowserOpened
		if msg.BrowserOpened {
			m.addStatus(statusInfo, "Browser opened for authorization")
		}
		return m, nil

	case MsgWaitingForCallback:
		m.deadline = msg.Deadline
		m.remaining = time.Until(msg.Deadline)
		m.state = stateWaiting
		return m, tickAfterSecond()

	case MsgCallbackReceived:
		m.addStatus(statusOK, "Authorization received")
		return m, nil

	case MsgExchanging:
		m.state = stateExchanging
		m.addStatus(statusInfo, "Exchanging code for token...")
		return m, nil

	case MsgTokenSaved:
		m.addStatus(statusOK, "Token saved to "+msg.Path)
		return m, nil

	case MsgTokenSaveFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Warning: failed to save token: %v", msg.Err))
		return m, nil

	case MsgVerifying:
		m.addStatus(statusInfo, "Verifying token...")
		return m, nil

	case MsgVerifyOK:
		m.addStatus(statusOK, fmt.Sprintf("Token verified (%d workspace(s) accessible)", msg.Workspaces))
		return m, nil

	case MsgVerifyFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Token verification failed: %v", msg.Err))
		return m, nil

	case MsgLoginOK:
		m.tokenPreview = msg.Preview
		m.state = stateSuccess
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

// viewMain is shown during init, waiting, and exchange.
func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  Buddy Authorization  "))
	b.WriteString("\n\n")

	switch m.state {
	case stateWaiting:
		if !m.browserOpened && m.authorizeURL != "" {
			b.WriteString(styleBold.Render("Open this link to authorize:"))
			b.WriteString("\n")
			b.WriteString(m.authorizeURL)
			b.WriteString("\n\n")
		}
		b.WriteString(m.spinner.View())
		b.WriteString(" Waiting for authorization...")
		if m.remaining > 0 {
			b.WriteString("  ")
			b.WriteString(styleDim.Render(formatDuration(m.remaining) + " remaining"))
		}
		b.WriteString("\n")

	case stateExchanging:
		b.WriteString(m.spinner.View())
		b.WriteString(" Exchanging code for token...\n")

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Initializing...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewSuccess is shown after a successful login.
func (m Model) viewSuccess() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleOK.Render("  ✓ Logged in successfully!"))
	b.WriteString("\n\n")

	if m.tokenPreview != "" {
		b.WriteString(styleBold.Render("Access Token: "))
		b.WriteString(m.tokenPreview + "...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewError is shown when a fatal error occurs.
func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleErr.Render("  ✗ Login failed"))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
}

// tickAfterSecond returns a command that fires tickMsg after one second.
func tickAfterSecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatDuration formats a duration as "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
