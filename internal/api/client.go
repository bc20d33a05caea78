// Package api is the HTTP client for the Buddy REST API plus the session
// wrapper that refreshes expired tokens transparently.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

const defaultBaseURL = "https://api.buddy.works"

// Client performs authenticated calls against the Buddy REST API. Transport
// failures and 5xx responses are retried by the underlying retry client;
// 4xx responses come back as *APIError without retries.
type Client struct {
	baseURL string
	token   string
	http    *retry.Client
}

// NewClient builds a Client for the production API.
func NewClient(token string) (*Client, error) {
	return NewClientWithBaseURL(token, defaultBaseURL)
}

// NewClientWithBaseURL builds a Client against a custom base URL, used by
// tests to point at an httptest server.
func NewClientWithBaseURL(token, baseURL string) (*Client, error) {
	base := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	retryClient, err := retry.NewBackgroundClient(
		retry.WithHTTPClient(base),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    retryClient,
	}, nil
}

// BaseURL returns the API base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do issues one API request and decodes the JSON response into out (which
// may be nil for endpoints with no interesting body).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts the human message from a Buddy error body
// ({"errors":[{"message":"..."}]}), falling back to the raw body.
func errorMessage(body []byte) string {
	var errResp struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Errors) > 0 {
		return errResp.Errors[0].Message
	}
	return string(bytes.TrimSpace(body))
}

// Workspaces lists the workspaces the token can access.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var resp struct {
		Workspaces []Workspace `json:"workspaces"`
	}
	err := c.do(ctx, http.MethodGet, "/workspaces", nil, nil, &resp)
	return resp.Workspaces, err
}

// Workspace fetches one workspace by domain.
func (c *Client) Workspace(ctx context.Context, domain string) (*Workspace, error) {
	var w Workspace
	err := c.do(ctx, http.MethodGet, "/workspaces/"+url.PathEscape(domain), nil, nil, &w)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Projects lists the projects in a workspace.
func (c *Client) Projects(ctx context.Context, workspace string) ([]Project, error) {
	var resp struct {
		Projects []Project `json:"projects"`
	}
	err := c.do(ctx, http.MethodGet, workspacePath(workspace)+"/projects", nil, nil, &resp)
	return resp.Projects, err
}

// Project fetches one project by name.
func (c *Client) Project(ctx context.Context, workspace, name string) (*Project, error) {
	var p Project
	err := c.do(ctx, http.MethodGet, projectPath(workspace, name), nil, nil, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Pipelines lists the pipelines of a project.
func (c *Client) Pipelines(ctx context.Context, workspace, project string) ([]Pipeline, error) {
	var resp struct {
		Pipelines []Pipeline `json:"pipelines"`
	}
	err := c.do(ctx, http.MethodGet, projectPath(workspace, project)+"/pipelines", nil, nil, &resp)
	return resp.Pipelines, err
}

// Pipeline fetches one pipeline.
func (c *Client) Pipeline(ctx context.Context, workspace, project string, pipelineID int) (*Pipeline, error) {
	var p Pipeline
	err := c.do(ctx, http.MethodGet, pipelinePath(workspace, project, pipelineID), nil, nil, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePipeline adds a pipeline to a project. The payload carries only the
// fields the caller set so server defaults apply to the rest.
func (c *Client) CreatePipeline(ctx context.Context, workspace, project string, payload map[string]any) (*Pipeline, error) {
	var p Pipeline
	err := c.do(ctx, http.MethodPost, projectPath(workspace, project)+"/pipelines", nil, payload, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePipeline patches an existing pipeline.
func (c *Client) UpdatePipeline(ctx context.Context, workspace, project string, pipelineID int, payload map[string]any) (*Pipeline, error) {
	var p Pipeline
	err := c.do(ctx, http.MethodPatch, pipelinePath(workspace, project, pipelineID), nil, payload, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PipelineActions lists the actions configured on a pipeline.
func (c *Client) PipelineActions(ctx context.Context, workspace, project string, pipelineID int) ([]Action, error) {
	var resp struct {
		Actions []Action `json:"actions"`
	}
	err := c.do(ctx, http.MethodGet, pipelinePath(workspace, project, pipelineID)+"/actions", nil, nil, &resp)
	return resp.Actions, err
}

// PipelineAction fetches one action.
func (c *Client) PipelineAction(ctx context.Context, workspace, project string, pipelineID, actionID int) (*Action, error) {
	var a Action
	err := c.do(ctx, http.MethodGet, actionPath(workspace, project, pipelineID, actionID), nil, nil, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAction adds an action to a pipeline. The payload is passed through
// as-is because action schemas differ per action type.
func (c *Client) CreateAction(ctx context.Context, workspace, project string, pipelineID int, payload map[string]any) (*Action, error) {
	var a Action
	err := c.do(ctx, http.MethodPost, pipelinePath(workspace, project, pipelineID)+"/actions", nil, payload, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAction patches an existing action.
func (c *Client) UpdateAction(ctx context.Context, workspace, project string, pipelineID, actionID int, payload map[string]any) (*Action, error) {
	var a Action
	err := c.do(ctx, http.MethodPatch, actionPath(workspace, project, pipelineID, actionID), nil, payload, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAction removes an action from a pipeline.
func (c *Client) DeleteAction(ctx context.Context, workspace, project string, pipelineID, actionID int) error {
	return c.do(ctx, http.MethodDelete, actionPath(workspace, project, pipelineID, actionID), nil, nil, nil)
}

// Executions lists the executions of a pipeline.
func (c *Client) Executions(ctx context.Context, workspace, project string, pipelineID int) ([]Execution, error) {
	var resp struct {
		Executions []Execution `json:"executions"`
	}
	err := c.do(ctx, http.MethodGet, pipelinePath(workspace, project, pipelineID)+"/executions", nil, nil, &resp)
	return resp.Executions, err
}

// Execution fetches one execution with its per-action results.
func (c *Client) Execution(ctx context.Context, workspace, project string, pipelineID, executionID int) (*Execution, error) {
	var e Execution
	err := c.do(ctx, http.MethodGet, executionPath(workspace, project, pipelineID, executionID), nil, nil, &e)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RunExecution triggers a new execution.
func (c *Client) RunExecution(ctx context.Context, workspace, project string, pipelineID int, req RunRequest) (*Execution, error) {
	var e Execution
	err := c.do(ctx, http.MethodPost, pipelinePath(workspace, project, pipelineID)+"/executions", nil, req, &e)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RetryExecution re-runs a finished execution.
func (c *Client) RetryExecution(ctx context.Context, workspace, project string, pipelineID, executionID int) (*Execution, error) {
	return c.operateExecution(ctx, workspace, project, pipelineID, executionID, "RETRY")
}

// CancelExecution stops a running execution.
func (c *Client) CancelExecution(ctx context.Context, workspace, project string, pipelineID, executionID int) (*Execution, error) {
	return c.operateExecution(ctx, workspace, project, pipelineID, executionID, "CANCEL")
}

func (c *Client) operateExecution(ctx context.Context, workspace, project string, pipelineID, executionID int, operation string) (*Execution, error) {
	var e Execution
	payload := map[string]string{"operation": operation}
	err := c.do(ctx, http.MethodPost, executionPath(workspace, project, pipelineID, executionID), nil, payload, &e)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ActionExecution fetches one action's result within an execution,
// including its log lines.
func (c *Client) ActionExecution(ctx context.Context, workspace, project string, pipelineID, executionID, actionID int) (*ActionExecution, error) {
	var ae ActionExecution
	path := fmt.Sprintf("%s/actions/%d", executionPath(workspace, project, pipelineID, executionID), actionID)
	err := c.do(ctx, http.MethodGet, path, nil, nil, &ae)
	if err != nil {
		return nil, err
	}
	return &ae, nil
}

// Variables lists workspace variables, optionally filtered by project name
// or pipeline ID.
func (c *Client) Variables(ctx context.Context, workspace string, filters url.Values) ([]Variable, error) {
	var resp struct {
		Variables []Variable `json:"variables"`
	}
	err := c.do(ctx, http.MethodGet, workspacePath(workspace)+"/variables", filters, nil, &resp)
	return resp.Variables, err
}

// Variable fetches one variable.
func (c *Client) Variable(ctx context.Context, workspace string, variableID int) (*Variable, error) {
	var v Variable
	err := c.do(ctx, http.MethodGet, variablePath(workspace, variableID), nil, nil, &v)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVariable adds a workspace variable.
func (c *Client) CreateVariable(ctx context.Context, workspace string, v Variable) (*Variable, error) {
	var out Variable
	err := c.do(ctx, http.MethodPost, workspacePath(workspace)+"/variables", nil, v, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateVariable patches an existing variable.
func (c *Client) UpdateVariable(ctx context.Context, workspace string, variableID int, v Variable) (*Variable, error) {
	var out Variable
	err := c.do(ctx, http.MethodPatch, variablePath(workspace, variableID), nil, v, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteVariable removes a variable.
func (c *Client) DeleteVariable(ctx context.Context, workspace string, variableID int) error {
	return c.do(ctx, http.MethodDelete, variablePath(workspace, variableID), nil, nil, nil)
}

// Webhooks lists the workspace's webhooks.
func (c *Client) Webhooks(ctx context.Context, workspace string) ([]Webhook, error) {
	var resp struct {
		Webhooks []Webhook `json:"webhooks"`
	}
	err := c.do(ctx, http.MethodGet, workspacePath(workspace)+"/webhooks", nil, nil, &resp)
	return resp.Webhooks, err
}

// Webhook fetches one webhook.
func (c *Client) Webhook(ctx context.Context, workspace string, webhookID int) (*Webhook, error) {
	var w Webhook
	err := c.do(ctx, http.MethodGet, webhookPath(workspace, webhookID), nil, nil, &w)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWebhook registers a new webhook.
func (c *Client) CreateWebhook(ctx context.Context, workspace string, w Webhook) (*Webhook, error) {
	var out Webhook
	err := c.do(ctx, http.MethodPost, workspacePath(workspace)+"/webhooks", nil, w, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateWebhook patches an existing webhook.
func (c *Client) UpdateWebhook(ctx context.Context, workspace string, webhookID int, w Webhook) (*Webhook, error) {
	var out Webhook
	err := c.do(ctx, http.MethodPatch, webhookPath(workspace, webhookID), nil, w, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteWebhook removes a webhook.
func (c *Client) DeleteWebhook(ctx context.Context, workspace string, webhookID int) error {
	return c.do(ctx, http.MethodDelete, webhookPath(workspace, webhookID), nil, nil, nil)
}

func workspacePath(workspace string) string {
	return "/workspaces/" + url.PathEscape(workspace)
}

func projectPath(workspace, project string) string {
	return workspacePath(workspace) + "/projects/" + url.PathEscape(project)
}

func pipelinePath(workspace, project string, pipelineID int) string {
	return fmt.Sprintf("%s/pipelines/%d", projectPath(workspace, project), pipelineID)
}

func actionPath(workspace, project string, pipelineID, actionID int) string {
	return fmt.Sprintf("%s/actions/%d", pipelinePath(workspace, project, pipelineID), actionID)
}

func executionPath(workspace, project string, pipelineID, executionID int) string {
	return fmt.Sprintf("%s/executions/%d", pipelinePath(workspace, project, pipelineID), executionID)
}

func variablePath(workspace string, variableID int) string {
	return fmt.Sprintf("%s/variables/%d", workspacePath(workspace), variableID)
}

func webhookPath(workspace string, webhookID int) string {
	return fmt.Sprintf("%s/webhooks/%d", workspacePath(workspace), webhookID)
}
