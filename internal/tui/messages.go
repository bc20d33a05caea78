package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgAuthorizeURLReady signals that the authorization URL is ready and the
// browser was (or was not) opened.
type MsgAuthorizeURLReady struct {
	URL           string
	BrowserOpened bool
}

// MsgWaitingForCallback signals that the callback listener is waiting, with
// its timeout deadline.
type MsgWaitingForCallback struct{ Deadline time.Time }

// MsgCallbackReceived signals that the browser redirect arrived.
type MsgCallbackReceived struct{}

// MsgExchanging signals that the code-for-token exchange is in progress.
type MsgExchanging struct{}

// MsgTokenSaved signals that the token was persisted.
type MsgTokenSaved struct{ Path string }

// MsgTokenSaveFailed signals that persisting the token failed.
type MsgTokenSaveFailed struct{ Err error }

// MsgVerifying signals that post-login token verification is in progress.
type MsgVerifying struct{}

// MsgVerifyOK signals that verification succeeded.
type MsgVerifyOK struct{ Workspaces int }

// MsgVerifyFailed signals that verification failed.
type MsgVerifyFailed struct{ Err error }

// MsgLoginOK signals successful completion of the login flow.
type MsgLoginOK struct{ Preview string }

// MsgFatal signals a fatal error that should terminate the flow.
type MsgFatal struct{ Err error }
