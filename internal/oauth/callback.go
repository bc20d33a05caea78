package oauth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultCallbackPort is the first port probed for the local listener.
	DefaultCallbackPort = 8085

	// portRange is how many consecutive ports are probed before giving up.
	portRange = 100

	// CallbackPath is the path component of the registered redirect URI.
	CallbackPath = "/callback"

	// DefaultCallbackTimeout is how long the one-shot server waits for the
	// browser redirect before giving up.
	DefaultCallbackTimeout = 5 * time.Minute
)

// ErrCallbackTimeout is returned when no callback arrives before the
// deadline.
var ErrCallbackTimeout = errors.New("timed out waiting for authorization callback")

// CallbackResult carries the authorization code extracted from a successful
// callback request. It lives only for the single accept-respond cycle.
type CallbackResult struct {
	Code string
}

// FindAvailablePort probes ports starting at DefaultCallbackPort by
// attempting to connect: a successful connect means the port is taken. The
// probe-then-bind sequence is inherently racy; Listen reports a clear error
// if the port is grabbed in between.
func FindAvailablePort() (int, error) {
	for port := DefaultCallbackPort; port < DefaultCallbackPort+portRange; port++ {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
		if err != nil {
			return port, nil
		}
		conn.Close()
	}
	return 0, fmt.Errorf(
		"no available port in range %d-%d",
		DefaultCallbackPort,
		DefaultCallbackPort+portRange-1,
	)
}

// Listen binds the callback listener on the loopback interface. A bind
// failure (address in use) is non-fatal from the caller's view: it tries
// another port or reports the port as unavailable.
func Listen(port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("cannot listen on port %d: %w", port, err)
	}
	return ln, nil
}

// WaitForCallback blocks for exactly one inbound HTTP request on ln, up to
// timeout or until ctx is cancelled. The request is answered and the
// connection closed before returning; closing ln is the caller's job.
// Outcomes, checked in order:
//
//  1. malformed request line               -> 400, error
//  2. error query param (user denied)      -> 400, error with description
//  3. state missing or mismatched          -> 400, error (CSRF rejection)
//  4. code missing                         -> 400, error
//  5. otherwise                            -> 200 success page, CallbackResult
func WaitForCallback(ctx context.Context, ln net.Listener, expectedState string, timeout time.Duration) (*CallbackResult, error) {
	if tcp, ok := ln.(*net.TCPListener); ok {
		if err := tcp.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("failed to set accept deadline: %w", err)
		}
	}

	// Accept has no context form; cancellation expires the accept deadline
	// so the blocked Accept returns immediately.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			if tcp, ok := ln.(*net.TCPListener); ok {
				_ = tcp.SetDeadline(time.Now())
			} else {
				_ = ln.Close()
			}
		case <-stop:
		}
	}()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrCallbackTimeout
		}
		return nil, fmt.Errorf("accept failed: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	// Read the request head line-by-line until the blank line ending the
	// headers. The body, if any, is never needed.
	reader := bufio.NewReader(conn)
	requestLine, err := reader.ReadString('\n')
	if err != nil {
		writeResponse(conn, 400, "Bad Request")
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil || strings.TrimSpace(line) == "" {
			break
		}
	}

	fields := strings.Fields(requestLine)
	if len(fields) < 2 || fields[0] != "GET" {
		writeResponse(conn, 400, "Bad Request")
		return nil, errors.New("malformed callback request")
	}

	u, err := url.Parse(fields[1])
	if err != nil {
		writeResponse(conn, 400, "Bad Request")
		return nil, errors.New("malformed callback request")
	}
	params := u.Query()

	if params.Has("error") {
		desc := params.Get("error_description")
		if desc == "" {
			desc = params.Get("error")
		}
		writeResponse(conn, 400, "Authorization failed: "+desc)
		return nil, fmt.Errorf("authorization denied: %s", desc)
	}

	// Exact, case-sensitive match; anything else is a forged or stale
	// callback.
	if params.Get("state") != expectedState {
		writeResponse(conn, 400, "Invalid state parameter")
		return nil, errors.New("invalid state parameter")
	}

	if !params.Has("code") {
		writeResponse(conn, 400, "No authorization code received")
		return nil, errors.New("no authorization code received")
	}

	writeResponse(conn, 200, successHTML)
	return &CallbackResult{Code: params.Get("code")}, nil
}

// writeResponse writes exactly one HTTP response and leaves closing the
// connection to the caller.
func writeResponse(conn net.Conn, status int, body string) {
	statusText := "Bad Request"
	if status == 200 {
		statusText = "OK"
	}
	contentType := "text/plain"
	if strings.Contains(body, "<html>") {
		contentType = "text/html"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, statusText)
	fmt.Fprintf(&b, "Content-Type: %s; charset=utf-8\r\n", contentType)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	_, _ = conn.Write([]byte(b.String()))
}

const successHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Buddy CLI - Authorization Successful</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: #fff;
        }
        .container {
            text-align: center;
            padding: 2rem;
        }
        h1 { font-size: 2rem; margin-bottom: 0.5rem; }
        p { opacity: 0.9; }
        .checkmark {
            font-size: 4rem;
            margin-bottom: 1rem;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="checkmark">&#10003;</div>
        <h1>Authorization Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>`
