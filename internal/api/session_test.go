package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/buddy-works/buddy-cli/internal/config"
)

type fakeRefresher struct {
	calls int32
	token *oauth2.Token
	err   error
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func newRefreshStore(t *testing.T, values map[string]string) *config.Store {
	t.Helper()
	for _, envKey := range []string{"BUDDY_TOKEN", "BUDDY_CLIENT_ID", "BUDDY_CLIENT_SECRET"} {
		t.Setenv(envKey, "")
	}
	s := config.NewStoreAt(filepath.Join(t.TempDir(), "config.json"), "", nil)
	for k, v := range values {
		s.Set(k, v)
	}
	return s
}

func newRefreshSession(t *testing.T, srv *httptest.Server, store *config.Store, refresher TokenRefresher) *Session {
	t.Helper()
	client, err := NewClientWithBaseURL(store.Get(config.KeyToken), srv.URL)
	require.NoError(t, err)
	return NewSessionWith(store, client, func(clientID, clientSecret string) TokenRefresher {
		return refresher
	})
}

// expiredTokenServer rejects the stale token with 401 and accepts the fresh
// one, counting requests per token.
func expiredTokenServer(t *testing.T, staleToken, freshToken string, staleHits, freshHits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer " + staleToken:
			atomic.AddInt32(staleHits, 1)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors": [{"message": "Wrong authentication data"}]}`))
		case "Bearer " + freshToken:
			atomic.AddInt32(freshHits, 1)
			w.Write([]byte(`{"workspaces": [{"id": 1, "domain": "alpha"}]}`))
		default:
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_RefreshesOnceAndRetries(t *testing.T) {
	var staleHits, freshHits int32
	srv := expiredTokenServer(t, "stale", "fresh", &staleHits, &freshHits)

	store := newRefreshStore(t, map[string]string{
		config.KeyToken:        "stale",
		config.KeyRefreshToken: "refresh-1",
		config.KeyClientID:     "cid",
		config.KeyClientSecret: "csecret",
	})
	refresher := &fakeRefresher{token: &oauth2.Token{
		AccessToken:  "fresh",
		RefreshToken: "refresh-2",
	}}

	s := newRefreshSession(t, srv, store, refresher)

	workspaces, err := s.Workspaces(context.Background())
	require.NoError(t, err)
	require.Len(t, workspaces, 1)
	assert.Equal(t, "alpha", workspaces[0].Domain)

	assert.EqualValues(t, 1, refresher.calls)
	assert.EqualValues(t, 1, staleHits)
	assert.EqualValues(t, 1, freshHits)

	// rotated pair persisted
	assert.Equal(t, "fresh", store.Get(config.KeyToken))
	assert.Equal(t, "refresh-2", store.Get(config.KeyRefreshToken))
}

func TestSession_RefreshKeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	var staleHits, freshHits int32
	srv := expiredTokenServer(t, "stale", "fresh", &staleHits, &freshHits)

	store := newRefreshStore(t, map[string]string{
		config.KeyToken:        "stale",
		config.KeyRefreshToken: "refresh-1",
		config.KeyClientID:     "cid",
		config.KeyClientSecret: "csecret",
	})
	refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "fresh"}}

	s := newRefreshSession(t, srv, store, refresher)
	_, err := s.Workspaces(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "refresh-1", store.Get(config.KeyRefreshToken))
}

func TestSession_RefreshIsStickyPerSession(t *testing.T) {
	// Every request 401s, including those with the fresh token: the session
	// must refresh exactly once and then give up.
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	store := newRefreshStore(t, map[string]string{
		config.KeyToken:        "stale",
		config.KeyRefreshToken: "refresh-1",
		config.KeyClientID:     "cid",
		config.KeyClientSecret: "csecret",
	})
	refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "still-bad"}}

	s := newRefreshSession(t, srv, store, refresher)

	_, err := s.Workspaces(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.EqualValues(t, 1, refresher.calls)

	// second call through the same session: no further refresh
	_, err = s.Projects(context.Background(), "ws")
	require.Error(t, err)
	assert.EqualValues(t, 1, refresher.calls)
}

func TestSession_NoRefreshWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	store := newRefreshStore(t, map[string]string{
		config.KeyToken: "stale",
		// no refresh_token, no client credentials
	})
	refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "x"}}

	s := newRefreshSession(t, srv, store, refresher)
	_, err := s.Workspaces(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.EqualValues(t, 0, refresher.calls)
}

func TestSession_FailedRefreshPropagatesOriginal401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors": [{"message": "Wrong authentication data"}]}`))
	}))
	t.Cleanup(srv.Close)

	store := newRefreshStore(t, map[string]string{
		config.KeyToken:        "stale",
		config.KeyRefreshToken: "refresh-1",
		config.KeyClientID:     "cid",
		config.KeyClientSecret: "csecret",
	})
	refresher := &fakeRefresher{err: errors.New("invalid_grant: refresh token revoked")}

	s := newRefreshSession(t, srv, store, refresher)
	_, err := s.Workspaces(context.Background())
	require.Error(t, err)

	// the original 401 surfaces, not the refresh failure
	assert.True(t, IsUnauthorized(err))
	assert.NotContains(t, err.Error(), "invalid_grant")

	// the stored refresh token is untouched so the user can still recover
	assert.Equal(t, "refresh-1", store.Get(config.KeyRefreshToken))
	assert.Equal(t, "stale", store.Get(config.KeyToken))
}

func TestSession_Non401ErrorsAreNotRefreshed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	store := newRefreshStore(t, map[string]string{
		config.KeyToken:        "tok",
		config.KeyRefreshToken: "refresh-1",
		config.KeyClientID:     "cid",
		config.KeyClientSecret: "csecret",
	})
	refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "x"}}

	s := newRefreshSession(t, srv, store, refresher)
	_, err := s.Project(context.Background(), "ws", "nope")
	require.Error(t, err)
	assert.EqualValues(t, 0, refresher.calls)
}

func TestNewSession_RequiresToken(t *testing.T) {
	t.Setenv("BUDDY_TOKEN", "")
	store := config.NewStoreAt(filepath.Join(t.TempDir(), "config.json"), "", nil)

	_, err := NewSession(store)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestShouldAttemptRefresh(t *testing.T) {
	tests := []struct {
		name         string
		unauthorized bool
		attempted    bool
		refreshToken string
		clientID     string
		clientSecret string
		want         bool
	}{
		{"all present", true, false, "r", "c", "s", true},
		{"not unauthorized", false, false, "r", "c", "s", false},
		{"already attempted", true, true, "r", "c", "s", false},
		{"no refresh token", true, false, "", "c", "s", false},
		{"no client id", true, false, "r", "", "s", false},
		{"no client secret", true, false, "r", "c", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shouldAttemptRefresh(tt.unauthorized, tt.attempted, tt.refreshToken, tt.clientID, tt.clientSecret)
			assert.Equal(t, tt.want, got)
		})
	}
}
