package oauth

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateState(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state := GenerateState()

		assert.Len(t, state, 32)
		_, err := hex.DecodeString(state)
		assert.NoError(t, err)

		assert.False(t, seen[state], "duplicate state %q", state)
		seen[state] = true
	}
}

func TestAuthorizeURL_DefaultScopes(t *testing.T) {
	c := NewClient("my-client", "my-secret")
	raw := c.AuthorizeURL("http://127.0.0.1:8085/callback", "abc123", nil)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "api.buddy.works", u.Host)
	assert.Equal(t, "/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "web_server", q.Get("type"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "my-client", q.Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:8085/callback", q.Get("redirect_uri"))
	assert.Equal(t, "abc123", q.Get("state"))
	assert.Equal(t, "WORKSPACE EXECUTION_INFO EXECUTION_RUN USER_INFO", q.Get("scope"))
}

func TestAuthorizeURL_ExplicitScopes(t *testing.T) {
	c := NewClient("my-client", "my-secret")
	raw := c.AuthorizeURL("http://127.0.0.1:8085/callback", "s", []string{"WORKSPACE"})

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "WORKSPACE", u.Query().Get("scope"))
}

func TestExchangeCode_Success(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "new-access",
			"refresh_token": "new-refresh",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
	defer srv.Close()

	c := NewClientWithEndpoints("my-client", "my-secret", srv.URL+"/authorize", srv.URL+"/token", nil)
	token, err := c.ExchangeCode(context.Background(), "the-code", "http://127.0.0.1:8085/callback")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "the-code", gotForm.Get("code"))
	assert.Equal(t, "my-client", gotForm.Get("client_id"))
	assert.Equal(t, "my-secret", gotForm.Get("client_secret"))
	assert.Equal(t, "http://127.0.0.1:8085/callback", gotForm.Get("redirect_uri"))

	assert.Equal(t, "new-access", token.AccessToken)
	assert.Equal(t, "new-refresh", token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.Expiry, 10*time.Second)
}

func TestRefreshToken_Success(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "rotated", "token_type": "Bearer"}`))
	}))
	defer srv.Close()

	c := NewClientWithEndpoints("my-client", "my-secret", srv.URL+"/authorize", srv.URL+"/token", nil)
	token, err := c.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", gotForm.Get("grant_type"))
	assert.Equal(t, "old-refresh", gotForm.Get("refresh_token"))

	assert.Equal(t, "rotated", token.AccessToken)
	// provider omitted refresh_token; caller keeps the old one
	assert.Equal(t, "", token.RefreshToken)
	assert.True(t, token.Expiry.IsZero())
}

func TestRequestToken_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Code expired"}`))
	}))
	defer srv.Close()

	c := NewClientWithEndpoints("my-client", "my-secret", srv.URL+"/authorize", srv.URL+"/token", nil)
	_, err := c.ExchangeCode(context.Background(), "stale", "http://127.0.0.1:8085/callback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Contains(t, err.Error(), "Code expired")
}

func TestRequestToken_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	c := NewClientWithEndpoints("my-client", "my-secret", srv.URL+"/authorize", srv.URL+"/token", nil)
	_, err := c.ExchangeCode(context.Background(), "code", "http://127.0.0.1:8085/callback")
	require.Error(t, err)
}

func TestRequestToken_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type": "Bearer"}`))
	}))
	defer srv.Close()

	c := NewClientWithEndpoints("my-client", "my-secret", srv.URL+"/authorize", srv.URL+"/token", nil)
	_, err := c.ExchangeCode(context.Background(), "code", "http://127.0.0.1:8085/callback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access_token")
}
