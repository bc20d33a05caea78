// Package cli wires the buddy command tree.
package cli

import (
	"os"

	"github.com/buddy-works/buddy-cli/internal/api"
	"github.com/buddy-works/buddy-cli/internal/config"
)

// App owns the per-invocation dependencies shared by every command: the
// config store (with its .env loader) and the lazily-built API session.
type App struct {
	Store *config.Store
	Env   *config.EnvLoader

	session    *api.Session
	newSession func(*config.Store) (*api.Session, error)
}

// NewApp loads .env files from the working directory upward, then builds
// the config store on top of them.
func NewApp() *App {
	env := config.NewEnvLoader()
	if cwd, err := os.Getwd(); err == nil {
		env.LoadRecursive(cwd)
	}
	return &App{
		Store:      config.NewStore(env),
		Env:        env,
		newSession: api.NewSession,
	}
}

// NewAppWith builds an App from explicit parts, used by tests.
func NewAppWith(store *config.Store, env *config.EnvLoader, newSession func(*config.Store) (*api.Session, error)) *App {
	if newSession == nil {
		newSession = api.NewSession
	}
	return &App{
		Store:      store,
		Env:        env,
		newSession: newSession,
	}
}

// Session returns the authenticated API session, building it on first use.
// One Session per CLI invocation means the auto-refresh guard spans every
// call the command makes.
func (a *App) Session() (*api.Session, error) {
	if a.session == nil {
		s, err := a.newSession(a.Store)
		if err != nil {
			return nil, err
		}
		a.session = s
	}
	return a.session, nil
}
