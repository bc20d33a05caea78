package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buddy-works/buddy-cli/internal/api"
	"github.com/buddy-works/buddy-cli/internal/config"
)

// clearBuddyEnv blanks every config-mapped environment variable so tests
// see only what they set themselves.
func clearBuddyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BUDDY_TOKEN", "BUDDY_WORKSPACE", "BUDDY_PROJECT",
		"BUDDY_CLIENT_ID", "BUDDY_CLIENT_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func newTestApp(t *testing.T, handler http.Handler) *App {
	t.Helper()
	clearBuddyEnv(t)

	store := config.NewStoreAt(filepath.Join(t.TempDir(), "config.json"), "", nil)

	var newSession func(*config.Store) (*api.Session, error)
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		newSession = func(s *config.Store) (*api.Session, error) {
			client, err := api.NewClientWithBaseURL(s.Get(config.KeyToken), srv.URL)
			if err != nil {
				return nil, err
			}
			return api.NewSessionWith(s, client, nil), nil
		}
	}

	return NewAppWith(store, config.NewEnvLoader(), newSession)
}

// runCmd executes one CLI invocation and returns stdout.
func runCmd(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigSetAndShowJSON(t *testing.T) {
	app := newTestApp(t, nil)

	_, err := runCmd(t, app, "config:set", "workspace", "beta")
	require.NoError(t, err)

	out, err := runCmd(t, app, "config:show", "--json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]string{"workspace": "beta"}, got)
}

func TestConfigSet_RejectsUnknownKey(t *testing.T) {
	app := newTestApp(t, nil)

	_, err := runCmd(t, app, "config:set", "workspce", "beta")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.Contains(t, err.Error(), "workspace")
}

func TestConfigShow_TableSources(t *testing.T) {
	app := newTestApp(t, nil)
	t.Setenv("BUDDY_TOKEN", "env-token-value-1234")
	app.Store.Set(config.KeyWorkspace, "beta")

	out, err := runCmd(t, app, "config:show")
	require.NoError(t, err)

	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "[config]")
	assert.Contains(t, out, "[env]")
	// secrets are masked
	assert.NotContains(t, out, "env-token-value-1234")
	assert.Contains(t, out, "env-...1234")
}

func TestConfigClear(t *testing.T) {
	app := newTestApp(t, nil)
	app.Store.Set(config.KeyWorkspace, "beta")

	out, err := runCmd(t, app, "config:clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")
	assert.Equal(t, "", app.Store.Get(config.KeyWorkspace))
}

func TestConfigValidate_ReportsMissingPieces(t *testing.T) {
	app := newTestApp(t, nil)

	out, err := runCmd(t, app, "config:validate")
	require.Error(t, err)
	assert.Contains(t, out, "error: no API token configured")
	assert.Contains(t, out, "error: no workspace configured")
	assert.Contains(t, out, "warning: no default project configured")
}

func TestConfigValidate_JSONReport(t *testing.T) {
	app := newTestApp(t, nil)
	app.Store.Set(config.KeyToken, "tok")
	app.Store.Set(config.KeyWorkspace, "beta")

	out, err := runCmd(t, app, "config:validate", "--json")
	require.NoError(t, err)

	var report struct {
		Valid    bool     `json:"valid"`
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Warnings, 1)
}

func TestLogout(t *testing.T) {
	app := newTestApp(t, nil)
	app.Store.Set(config.KeyToken, "tok")
	app.Store.Set(config.KeyRefreshToken, "ref")
	app.Store.Set(config.KeyWorkspace, "beta")

	out, err := runCmd(t, app, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	assert.Equal(t, "", app.Store.Get(config.KeyToken))
	assert.Equal(t, "", app.Store.Get(config.KeyRefreshToken))
	// unrelated config survives
	assert.Equal(t, "beta", app.Store.Get(config.KeyWorkspace))
}

func TestLogin_RequiresCredentials(t *testing.T) {
	app := newTestApp(t, nil)

	root := NewRootCmd(app)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"login"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing OAuth credentials")
	assert.Contains(t, errOut.String(), "BUDDY_CLIENT_ID")
	assert.Contains(t, errOut.String(), "https://app.buddy.works/my-apps")
}

func TestProjectsList_RequiresWorkspace(t *testing.T) {
	app := newTestApp(t, nil)
	app.Store.Set(config.KeyToken, "tok")

	_, err := runCmd(t, app, "projects:list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no workspace specified")
	assert.Contains(t, err.Error(), "config:set workspace")
}

func TestProjectsList_WorkspaceFromConfig(t *testing.T) {
	var gotPath string
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"projects": [{"name": "web", "display_name": "Web App", "status": "ACTIVE"}]}`))
	}))
	app.Store.Set(config.KeyToken, "tok")
	app.Store.Set(config.KeyWorkspace, "beta")

	out, err := runCmd(t, app, "projects:list")
	require.NoError(t, err)
	assert.Equal(t, "/workspaces/beta/projects", gotPath)
	assert.Contains(t, out, "web")
	assert.Contains(t, out, "Web App")
}

func TestProjectsList_FlagOverridesConfig(t *testing.T) {
	var gotPath string
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"projects": []}`))
	}))
	app.Store.Set(config.KeyToken, "tok")
	app.Store.Set(config.KeyWorkspace, "beta")

	_, err := runCmd(t, app, "projects:list", "--workspace", "gamma")
	require.NoError(t, err)
	assert.Equal(t, "/workspaces/gamma/projects", gotPath)
}

func TestPipelinesRun_PostsRequest(t *testing.T) {
	var gotBody map[string]any
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"id": 42, "status": "ENQUEUED"}`))
	}))
	app.Store.Set(config.KeyToken, "tok")
	app.Store.Set(config.KeyWorkspace, "beta")
	app.Store.Set(config.KeyProject, "web")

	out, err := runCmd(t, app, "pipelines:run", "7", "--comment", "release", "--revision", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "Execution #42 started")

	assert.Equal(t, "release", gotBody["comment"])
	assert.Equal(t, map[string]any{"revision": "abc123"}, gotBody["to_revision"])
}

func TestPipelinesGetCreate_YAMLRoundTrip(t *testing.T) {
	var createdPipeline, createdAction map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/workspaces/beta/projects/web/pipelines/7":
			w.Write([]byte(`{"id": 7, "name": "Deploy", "trigger_mode": "MANUAL",
				"ref_name": "refs/heads/main", "terminate_stale_runs": true,
				"variables": [{"key": "STAGE", "value": "prod", "settable": true}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/workspaces/beta/projects/web/pipelines/7/actions":
			w.Write([]byte(`{"actions": [{"id": 3, "name": "Build", "type": "BUILD",
				"docker_image_name": "node", "docker_image_tag": "18",
				"execute_commands": ["npm install", "npm run build"]}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/workspaces/beta/projects/web/pipelines":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createdPipeline))
			w.Write([]byte(`{"id": 21, "name": "Deploy"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/workspaces/beta/projects/web/pipelines/21/actions":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createdAction))
			w.Write([]byte(`{"id": 31, "name": "Build"}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	app := newTestApp(t, handler)
	app.Store.Set(config.KeyToken, "tok")
	app.Store.Set(config.KeyWorkspace, "beta")
	app.Store.Set(config.KeyProject, "web")

	path := filepath.Join(t.TempDir(), "deploy.yaml")
	out, err := runCmd(t, app, "pipelines:get", "7", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved pipeline config to "+path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "name: Deploy")
	assert.Contains(t, string(raw), "trigger_mode: MANUAL")
	assert.Contains(t, string(raw), "npm run build")

	// The export feeds straight back into create.
	out, err = runCmd(t, app, "pipelines:create", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created pipeline: Deploy (ID: 21)")
	assert.Contains(t, out, "Created action: Build")

	assert.Equal(t, "Deploy", createdPipeline["name"])
	assert.Equal(t, "MANUAL", createdPipeline["trigger_mode"])
	assert.Equal(t, "refs/heads/main", createdPipeline["ref_name"])
	assert.Equal(t, true, createdPipeline["terminate_stale_runs"])
	assert.NotContains(t, createdPipeline, "actions")
	vars, ok := createdPipeline["variables"].([]any)
	require.True(t, ok)
	require.Len(t, vars, 1)
	assert.Equal(t, "STAGE", vars[0].(map[string]any)["key"])

	assert.Equal(t, "BUILD", createdAction["type"])
	assert.Equal(t, "node", createdAction["docker_image_name"])
	assert.Equal(t, []any{"npm install", "npm run build"}, createdAction["execute_commands"])
}

func TestPipelinesCreate_RequiresName(t *testing.T) {
	app := newTestApp(t, nil)
	app.Store.Set(config.KeyWorkspace, "beta")
	app.Store.Set(config.KeyProject, "web")

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trigger_mode: MANUAL\n"), 0o644))

	_, err := runCmd(t, app, "pipelines:create", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestPipelinesUpdate_SendsOnlyFileFields(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"id": 7, "name": "Renamed"}`))
	}))
	app.Store.Set(config.KeyToken, "tok")
	app.Store.Set(config.KeyWorkspace, "beta")
	app.Store.Set(config.KeyProject, "web")

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Renamed\nref_name: refs/heads/develop\n"), 0o644))

	out, err := runCmd(t, app, "pipelines:update", "7", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Updated pipeline: Renamed (ID: 7)")

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/workspaces/beta/projects/web/pipelines/7", gotPath)
	assert.Equal(t, map[string]any{"name": "Renamed", "ref_name": "refs/heads/develop"}, gotBody)
}

func TestExecutionsList_RequiresPipeline(t *testing.T) {
	app := newTestApp(t, nil)
	app.Store.Set(config.KeyToken, "tok")
	app.Store.Set(config.KeyWorkspace, "beta")
	app.Store.Set(config.KeyProject, "web")

	_, err := runCmd(t, app, "executions:list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--pipeline")
}

func TestCommands_NoToken(t *testing.T) {
	app := newTestApp(t, nil)
	app.newSession = api.NewSession
	app.Store.Set(config.KeyWorkspace, "beta")

	_, err := runCmd(t, app, "projects:list")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNoToken)
}

func TestVariablesSet_CreatesWhenMissing(t *testing.T) {
	var created map[string]any
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.Write([]byte(`{"variables": []}`))
		case r.Method == http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.Write([]byte(`{"id": 5, "key": "DEPLOY_ENV"}`))
		}
	}))
	app.Store.Set(config.KeyToken, "tok")
	app.Store.Set(config.KeyWorkspace, "beta")

	out, err := runCmd(t, app, "vars:set", "DEPLOY_ENV", "staging", "--settable")
	require.NoError(t, err)
	assert.Contains(t, out, "created")
	assert.Equal(t, "DEPLOY_ENV", created["key"])
	assert.Equal(t, "staging", created["value"])
	assert.Equal(t, true, created["settable"])
}

func TestParseID(t *testing.T) {
	id, err := parseID("42", "pipeline")
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	_, err = parseID("seven", "pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pipeline")
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "short", maskToken("short"))
	assert.Equal(t, "abcd...wxyz", maskToken("abcdefghijklmnopqrstuvwxyz"))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(""))
	assert.Equal(t, "not-a-time", formatTime("not-a-time"))
	assert.NotEmpty(t, formatTime("2026-08-30T10:00:00Z"))
}
