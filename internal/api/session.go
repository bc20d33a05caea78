package api

import (
	"context"
	"errors"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/buddy-works/buddy-cli/internal/config"
	"github.com/buddy-works/buddy-cli/internal/oauth"
)

// TokenRefresher mints a new token pair from a refresh token.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// RefresherFactory builds a TokenRefresher from the OAuth client
// credentials held in config. Injected so tests can count refresh attempts.
type RefresherFactory func(clientID, clientSecret string) TokenRefresher

// ErrNoToken is returned when no access token is configured at all.
var ErrNoToken = errors.New(
	"no API token configured; run 'buddy login' to authenticate, or set BUDDY_TOKEN",
)

// Session wraps every API call with a single-attempt automatic token
// refresh: the first 401 triggers one refresh and one retry of the original
// call. The attempted flag is sticky for the Session's lifetime, so a later
// 401 — even after a successful refresh — propagates as-is rather than
// looping.
type Session struct {
	client           *Client
	store            *config.Store
	newRefresher     RefresherFactory
	attemptedRefresh bool
}

// NewSession builds a Session using the access token resolved from store.
func NewSession(store *config.Store) (*Session, error) {
	token := store.Get(config.KeyToken)
	if token == "" {
		return nil, ErrNoToken
	}
	client, err := NewClient(token)
	if err != nil {
		return nil, err
	}
	return NewSessionWith(store, client, func(clientID, clientSecret string) TokenRefresher {
		return oauth.NewClient(clientID, clientSecret)
	}), nil
}

// NewSessionWith wires a Session from explicit parts, used by tests.
func NewSessionWith(store *config.Store, client *Client, factory RefresherFactory) *Session {
	return &Session{
		client:       client,
		store:        store,
		newRefresher: factory,
	}
}

// shouldAttemptRefresh is the pure decision over the error tag, the sticky
// attempted flag, and the presence of refresh credentials.
func shouldAttemptRefresh(unauthorized, attempted bool, refreshToken, clientID, clientSecret string) bool {
	if !unauthorized || attempted {
		return false
	}
	return refreshToken != "" && clientID != "" && clientSecret != ""
}

// call executes fn, refreshing the token and retrying exactly once when fn
// fails with a 401 and refresh credentials are available. A failed refresh
// propagates the original 401 untouched and leaves the stored refresh token
// in place.
func call[T any](ctx context.Context, s *Session, fn func(*Client) (T, error)) (T, error) {
	out, err := fn(s.client)
	if err == nil {
		return out, nil
	}

	refreshToken := s.store.Get(config.KeyRefreshToken)
	clientID := s.store.Get(config.KeyClientID)
	clientSecret := s.store.Get(config.KeyClientSecret)
	if !shouldAttemptRefresh(IsUnauthorized(err), s.attemptedRefresh, refreshToken, clientID, clientSecret) {
		return out, err
	}

	s.attemptedRefresh = true
	token, refreshErr := s.newRefresher(clientID, clientSecret).RefreshToken(ctx, refreshToken)
	if refreshErr != nil {
		return out, err
	}

	s.store.Set(config.KeyToken, token.AccessToken)
	if token.RefreshToken != "" {
		s.store.Set(config.KeyRefreshToken, token.RefreshToken)
	}

	client, clientErr := NewClientWithBaseURL(token.AccessToken, s.client.baseURL)
	if clientErr != nil {
		return out, err
	}
	s.client = client

	return fn(s.client)
}

func (s *Session) Workspaces(ctx context.Context) ([]Workspace, error) {
	return call(ctx, s, func(c *Client) ([]Workspace, error) { return c.Workspaces(ctx) })
}

func (s *Session) Workspace(ctx context.Context, domain string) (*Workspace, error) {
	return call(ctx, s, func(c *Client) (*Workspace, error) { return c.Workspace(ctx, domain) })
}

func (s *Session) Projects(ctx context.Context, workspace string) ([]Project, error) {
	return call(ctx, s, func(c *Client) ([]Project, error) { return c.Projects(ctx, workspace) })
}

func (s *Session) Project(ctx context.Context, workspace, name string) (*Project, error) {
	return call(ctx, s, func(c *Client) (*Project, error) { return c.Project(ctx, workspace, name) })
}

func (s *Session) Pipelines(ctx context.Context, workspace, project string) ([]Pipeline, error) {
	return call(ctx, s, func(c *Client) ([]Pipeline, error) { return c.Pipelines(ctx, workspace, project) })
}

func (s *Session) Pipeline(ctx context.Context, workspace, project string, pipelineID int) (*Pipeline, error) {
	return call(ctx, s, func(c *Client) (*Pipeline, error) {
		return c.Pipeline(ctx, workspace, project, pipelineID)
	})
}

func (s *Session) CreatePipeline(ctx context.Context, workspace, project string, payload map[string]any) (*Pipeline, error) {
	return call(ctx, s, func(c *Client) (*Pipeline, error) {
		return c.CreatePipeline(ctx, workspace, project, payload)
	})
}

func (s *Session) UpdatePipeline(ctx context.Context, workspace, project string, pipelineID int, payload map[string]any) (*Pipeline, error) {
	return call(ctx, s, func(c *Client) (*Pipeline, error) {
		return c.UpdatePipeline(ctx, workspace, project, pipelineID, payload)
	})
}

func (s *Session) PipelineActions(ctx context.Context, workspace, project string, pipelineID int) ([]Action, error) {
	return call(ctx, s, func(c *Client) ([]Action, error) {
		return c.PipelineActions(ctx, workspace, project, pipelineID)
	})
}

func (s *Session) PipelineAction(ctx context.Context, workspace, project string, pipelineID, actionID int) (*Action, error) {
	return call(ctx, s, func(c *Client) (*Action, error) {
		return c.PipelineAction(ctx, workspace, project, pipelineID, actionID)
	})
}

func (s *Session) CreateAction(ctx context.Context, workspace, project string, pipelineID int, payload map[string]any) (*Action, error) {
	return call(ctx, s, func(c *Client) (*Action, error) {
		return c.CreateAction(ctx, workspace, project, pipelineID, payload)
	})
}

func (s *Session) UpdateAction(ctx context.Context, workspace, project string, pipelineID, actionID int, payload map[string]any) (*Action, error) {
	return call(ctx, s, func(c *Client) (*Action, error) {
		return c.UpdateAction(ctx, workspace, project, pipelineID, actionID, payload)
	})
}

func (s *Session) DeleteAction(ctx context.Context, workspace, project string, pipelineID, actionID int) error {
	_, err := call(ctx, s, func(c *Client) (struct{}, error) {
		return struct{}{}, c.DeleteAction(ctx, workspace, project, pipelineID, actionID)
	})
	return err
}

func (s *Session) Executions(ctx context.Context, workspace, project string, pipelineID int) ([]Execution, error) {
	return call(ctx, s, func(c *Client) ([]Execution, error) {
		return c.Executions(ctx, workspace, project, pipelineID)
	})
}

func (s *Session) Execution(ctx context.Context, workspace, project string, pipelineID, executionID int) (*Execution, error) {
	return call(ctx, s, func(c *Client) (*Execution, error) {
		return c.Execution(ctx, workspace, project, pipelineID, executionID)
	})
}

func (s *Session) RunExecution(ctx context.Context, workspace, project string, pipelineID int, req RunRequest) (*Execution, error) {
	return call(ctx, s, func(c *Client) (*Execution, error) {
		return c.RunExecution(ctx, workspace, project, pipelineID, req)
	})
}

func (s *Session) RetryExecution(ctx context.Context, workspace, project string, pipelineID, executionID int) (*Execution, error) {
	return call(ctx, s, func(c *Client) (*Execution, error) {
		return c.RetryExecution(ctx, workspace, project, pipelineID, executionID)
	})
}

func (s *Session) CancelExecution(ctx context.Context, workspace, project string, pipelineID, executionID int) (*Execution, error) {
	return call(ctx, s, func(c *Client) (*Execution, error) {
		return c.CancelExecution(ctx, workspace, project, pipelineID, executionID)
	})
}

func (s *Session) ActionExecution(ctx context.Context, workspace, project string, pipelineID, executionID, actionID int) (*ActionExecution, error) {
	return call(ctx, s, func(c *Client) (*ActionExecution, error) {
		return c.ActionExecution(ctx, workspace, project, pipelineID, executionID, actionID)
	})
}

func (s *Session) Variables(ctx context.Context, workspace string, filters url.Values) ([]Variable, error) {
	return call(ctx, s, func(c *Client) ([]Variable, error) {
		return c.Variables(ctx, workspace, filters)
	})
}

func (s *Session) Variable(ctx context.Context, workspace string, variableID int) (*Variable, error) {
	return call(ctx, s, func(c *Client) (*Variable, error) {
		return c.Variable(ctx, workspace, variableID)
	})
}

func (s *Session) CreateVariable(ctx context.Context, workspace string, v Variable) (*Variable, error) {
	return call(ctx, s, func(c *Client) (*Variable, error) {
		return c.CreateVariable(ctx, workspace, v)
	})
}

func (s *Session) UpdateVariable(ctx context.Context, workspace string, variableID int, v Variable) (*Variable, error) {
	return call(ctx, s, func(c *Client) (*Variable, error) {
		return c.UpdateVariable(ctx, workspace, variableID, v)
	})
}

func (s *Session) DeleteVariable(ctx context.Context, workspace string, variableID int) error {
	_, err := call(ctx, s, func(c *Client) (struct{}, error) {
		return struct{}{}, c.DeleteVariable(ctx, workspace, variableID)
	})
	return err
}

func (s *Session) Webhooks(ctx context.Context, workspace string) ([]Webhook, error) {
	return call(ctx, s, func(c *Client) ([]Webhook, error) { return c.Webhooks(ctx, workspace) })
}

func (s *Session) Webhook(ctx context.Context, workspace string, webhookID int) (*Webhook, error) {
	return call(ctx, s, func(c *Client) (*Webhook, error) { return c.Webhook(ctx, workspace, webhookID) })
}

func (s *Session) CreateWebhook(ctx context.Context, workspace string, w Webhook) (*Webhook, error) {
	return call(ctx, s, func(c *Client) (*Webhook, error) { return c.CreateWebhook(ctx, workspace, w) })
}

func (s *Session) UpdateWebhook(ctx context.Context, workspace string, webhookID int, w Webhook) (*Webhook, error) {
	return call(ctx, s, func(c *Client) (*Webhook, error) {
		return c.UpdateWebhook(ctx, workspace, webhookID, w)
	})
}

func (s *Session) DeleteWebhook(ctx context.Context, workspace string, webhookID int) error {
	_, err := call(ctx, s, func(c *Client) (struct{}, error) {
		return struct{}{}, c.DeleteWebhook(ctx, workspace, webhookID)
	})
	return err
}
