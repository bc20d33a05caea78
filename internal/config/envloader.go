package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvLoader loads .env files from the working directory up to the filesystem
// root and remembers which file each variable came from. It is an explicit
// object rather than package state so each caller (and each test) owns its
// own source map.
type EnvLoader struct {
	sources map[string]string // env key -> .env file path
}

// NewEnvLoader returns an EnvLoader with no files loaded yet.
func NewEnvLoader() *EnvLoader {
	return &EnvLoader{sources: make(map[string]string)}
}

// LoadRecursive walks from startDir to the filesystem root loading a .env
// file from each directory that has one. The walk starts at the child, and a
// key set by a nearer directory is never overwritten by a parent. Variables
// already present in the process environment are left untouched.
func (l *EnvLoader) LoadRecursive(startDir string) {
	dir := startDir
	for {
		l.loadFile(filepath.Join(dir, ".env"))

		parent := filepath.Dir(dir)
		if parent == dir {
			return // reached filesystem root
		}
		dir = parent
	}
}

// loadFile parses one .env file and applies its variables. godotenv handles
// comments, blank lines, quoting, and "export KEY=value" lines.
func (l *EnvLoader) loadFile(path string) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return
	}
	for key, value := range vars {
		if os.Getenv(key) != "" {
			continue
		}
		if _, seen := l.sources[key]; seen {
			continue
		}
		l.sources[key] = path
		_ = os.Setenv(key, value)
	}
}

// Source returns the .env file path a key was loaded from, or "" if the key
// did not come from a tracked .env file.
func (l *EnvLoader) Source(key string) string {
	return l.sources[key]
}

// Sources returns every tracked key with its originating file path.
func (l *EnvLoader) Sources() map[string]string {
	out := make(map[string]string, len(l.sources))
	for k, v := range l.sources {
		out[k] = v
	}
	return out
}
