// Package tui renders the interactive login flow. Output goes to stderr so
// stdout stays pipeable.
package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all output from the OAuth login flow.
type Displayer interface {
	Banner()
	AuthorizeURLReady(url string, browserOpened bool)
	WaitingForCallback(deadline time.Time)
	CallbackReceived()
	Exchanging()
	TokenSaved(path string)
	TokenSaveFailed(err error)
	Verifying()
	VerifyOK(workspaces int)
	VerifyFailed(err error)
	LoginOK(preview string)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w. Used when stderr is not a
// TTY (pipes, CI, SSH without pty) or with --no-browser.
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "Authenticating with Buddy...")
}

func (p *PlainDisplayer) AuthorizeURLReady(url string, browserOpened bool) {
	if browserOpened {
		fmt.Fprintln(p.w, "Opening browser to authenticate with Buddy...")
		return
	}
	fmt.Fprintln(p.w, "Open this URL in your browser:")
	fmt.Fprintln(p.w, url)
}

func (p *PlainDisplayer) WaitingForCallback(deadline time.Time) {
	fmt.Fprintln(p.w, "Waiting for authorization...")
}

func (p *PlainDisplayer) CallbackReceived() {
	fmt.Fprintln(p.w, "Authorization received.")
}

func (p *PlainDisplayer) Exchanging() {
	fmt.Fprintln(p.w, "Exchanging code for token...")
}

func (p *PlainDisplayer) TokenSaved(path string) {
	fmt.Fprintf(p.w, "Token saved to %s\n", path)
}

func (p *PlainDisplayer) TokenSaveFailed(err error) {
	fmt.Fprintf(p.w, "Warning: failed to save token: %v\n", err)
}

func (p *PlainDisplayer) Verifying() {
	fmt.Fprintln(p.w, "Verifying token...")
}

func (p *PlainDisplayer) VerifyOK(workspaces int) {
	fmt.Fprintf(p.w, "Token verified (%d workspace(s) accessible).\n", workspaces)
}

func (p *PlainDisplayer) VerifyFailed(err error) {
	fmt.Fprintf(p.w, "Token verification failed: %v\n", err)
}

func (p *PlainDisplayer) LoginOK(preview string) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, "Logged in successfully!")
	if preview != "" {
		fmt.Fprintf(p.w, "Access token: %s...\n", preview)
	}
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                            {}
func (NoopDisplayer) AuthorizeURLReady(_ string, _ bool) {}
func (NoopDisplayer) WaitingForCallback(_ time.Time)     {}
func (NoopDisplayer) CallbackReceived()                  {}
func (NoopDisplayer) Exchanging()                        {}
func (NoopDisplayer) TokenSaved(_ string)                {}
func (NoopDisplayer) TokenSaveFailed(_ error)            {}
func (NoopDisplayer) Verifying()                         {}
func (NoopDisplayer) VerifyOK(_ int)                     {}
func (NoopDisplayer) VerifyFailed(_ error)               {}
func (NoopDisplayer) LoginOK(_ string)                   {}
func (NoopDisplayer) Fatal(_ error)                      {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) AuthorizeURLReady(url string, browserOpened bool) {
	t.p.Send(MsgAuthorizeURLReady{URL: url, BrowserOpened: browserOpened})
}

func (t *ProgramDisplayer) WaitingForCallback(deadline time.Time) {
	t.p.Send(MsgWaitingForCallback{Deadline: deadline})
}

func (t *ProgramDisplayer) CallbackReceived() {
	t.p.Send(MsgCallbackReceived{})
}

func (t *ProgramDisplayer) Exchanging() {
	t.p.Send(MsgExchanging{})
}

func (t *ProgramDisplayer) TokenSaved(path string) {
	t.p.Send(MsgTokenSaved{Path: path})
}

func (t *ProgramDisplayer) TokenSaveFailed(err error) {
	t.p.Send(MsgTokenSaveFailed{Err: err})
}

func (t *ProgramDisplayer) Verifying() {
	t.p.Send(MsgVerifying{})
}

func (t *ProgramDisplayer) VerifyOK(workspaces int) {
	t.p.Send(MsgVerifyOK{Workspaces: workspaces})
}

func (t *ProgramDisplayer) VerifyFailed(err error) {
	t.p.Send(MsgVerifyFailed{Err: err})
}

func (t *ProgramDisplayer) LoginOK(preview string) {
	t.p.Send(MsgLoginOK{Preview: preview})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
