// Package oauth implements the Buddy OAuth2 authorization-code flow: the
// authorize URL, the local callback listener, the code exchange, and token
// refresh.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	authorizeURL = "https://api.buddy.works/oauth2/authorize"
	tokenURL     = "https://api.buddy.works/oauth2/token"

	tokenRequestTimeout = 10 * time.Second
)

// DefaultScopes are requested when the caller does not specify any.
var DefaultScopes = []string{
	"WORKSPACE",
	"EXECUTION_INFO",
	"EXECUTION_RUN",
	"USER_INFO",
}

// Client talks to the Buddy OAuth2 provider. It carries no retry logic:
// every failure is terminal for that attempt and the user re-runs login.
type Client struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	authorizeURL string
	tokenURL     string
}

// NewClient creates a Client for the production Buddy endpoints.
func NewClient(clientID, clientSecret string) *Client {
	return NewClientWithEndpoints(clientID, clientSecret, authorizeURL, tokenURL, nil)
}

// NewClientWithEndpoints creates a Client against custom endpoints, used by
// tests to point at a local mock provider. A nil httpClient falls back to
// http.DefaultClient.
func NewClientWithEndpoints(clientID, clientSecret, authURL, tokURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		authorizeURL: authURL,
		tokenURL:     tokURL,
	}
}

// AuthorizeURL builds the browser URL for the authorization-code grant.
// Pure string construction, no I/O.
func (c *Client) AuthorizeURL(redirectURI, state string, scopes []string) string {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	params := url.Values{
		"type":          []string{"web_server"},
		"response_type": []string{"code"},
		"client_id":     []string{c.clientID},
		"redirect_uri":  []string{redirectURI},
		"scope":         []string{strings.Join(scopes, " ")},
		"state":         []string{state},
	}
	return c.authorizeURL + "?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("redirect_uri", redirectURI)
	return c.requestToken(ctx, data)
}

// RefreshToken exchanges a refresh token for a new token pair. The provider
// may omit refresh_token from the response; the caller decides whether to
// keep the old one.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	return c.requestToken(ctx, data)
}

func (c *Client) requestToken(ctx context.Context, data url.Values) (*oauth2.Token, error) {
	reqCtx, cancel := context.WithTimeout(ctx, tokenRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		reqCtx,
		http.MethodPost,
		c.tokenURL,
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != "" {
			if errResp.ErrorDescription != "" {
				return nil, fmt.Errorf("%s: %s", errResp.Error, errResp.ErrorDescription)
			}
			return nil, fmt.Errorf("token request rejected: %s", errResp.Error)
		}
		return nil, &oauth2.RetrieveError{
			Response: resp,
			Body:     body,
		}
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("no access_token in token response")
	}

	token := &oauth2.Token{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
	}
	if tokenResp.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	return token, nil
}

// GenerateState returns 16 cryptographically random bytes hex-encoded. This
// value is the sole CSRF defense for the local callback, so crypto/rand
// failure is fatal.
func GenerateState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return hex.EncodeToString(b)
}
