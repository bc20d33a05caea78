// Package config implements layered configuration resolution for the CLI:
// environment variables take precedence over the project-local config file,
// which takes precedence over the user-global config file. Mutations are
// written through to the user-global file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Source identifies where a resolved config value came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceProject Source = "project"
	SourceUser    Source = "config"
)

// Recognized config keys.
const (
	KeyToken         = "token"
	KeyRefreshToken  = "refresh_token"
	KeyWorkspace     = "workspace"
	KeyProject       = "project"
	KeyClientID      = "client_id"
	KeyClientSecret  = "client_secret"
	KeyDefaultFormat = "default_format"
)

// ValidKeys lists every key the CLI accepts for config:set.
var ValidKeys = []string{
	KeyToken,
	KeyRefreshToken,
	KeyWorkspace,
	KeyProject,
	KeyClientID,
	KeyClientSecret,
	KeyDefaultFormat,
}

// envMap maps config keys to the environment variables that override them.
// Values resolved from these always outrank file-based values and are never
// written back to disk.
var envMap = map[string]string{
	KeyToken:        "BUDDY_TOKEN",
	KeyWorkspace:    "BUDDY_WORKSPACE",
	KeyProject:      "BUDDY_PROJECT",
	KeyClientID:     "BUDDY_CLIENT_ID",
	KeyClientSecret: "BUDDY_CLIENT_SECRET",
}

// Entry is one resolved config value with source attribution, as shown by
// config:show.
type Entry struct {
	Value  string `json:"value"`
	Source Source `json:"source"`
	Path   string `json:"path,omitempty"`
}

// Store holds the merged configuration for one CLI invocation.
type Store struct {
	values      map[string]string
	sources     map[string]Source
	userPath    string
	projectPath string
	env         *EnvLoader
}

// NewStore builds a Store using the default file locations: the user-global
// file at ~/.config/buddy-cli/config.json and the project-local file at
// ./.buddy-cli.json. A missing home directory or working directory degrades
// to the corresponding layer being absent.
func NewStore(env *EnvLoader) *Store {
	var userPath string
	if home, err := os.UserHomeDir(); err == nil {
		userPath = filepath.Join(home, ".config", "buddy-cli", "config.json")
	}

	var projectPath string
	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, ".buddy-cli.json")
		if _, err := os.Stat(p); err == nil {
			projectPath = p
		}
	}

	return NewStoreAt(userPath, projectPath, env)
}

// NewStoreAt builds a Store reading from explicit file paths. Either path may
// be empty, which disables that layer. Used directly by tests.
func NewStoreAt(userPath, projectPath string, env *EnvLoader) *Store {
	s := &Store{
		values:      make(map[string]string),
		sources:     make(map[string]Source),
		userPath:    userPath,
		projectPath: projectPath,
		env:         env,
	}
	s.load()
	return s
}

// load reads the user file first (lowest priority), then overlays the
// project file key-by-key. A file that is missing or contains malformed JSON
// contributes nothing; corrupt config must never crash the CLI.
func (s *Store) load() {
	for _, layer := range []struct {
		path   string
		source Source
	}{
		{s.userPath, SourceUser},
		{s.projectPath, SourceProject},
	} {
		if layer.path == "" {
			continue
		}
		data, err := os.ReadFile(layer.path)
		if err != nil {
			continue
		}
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		for k, v := range m {
			s.values[k] = v
			s.sources[k] = layer.source
		}
	}
}

// Get resolves a key: the mapped environment variable wins if set and
// non-empty, then the merged file value. Returns "" when unset.
func (s *Store) Get(key string) string {
	if envKey, ok := envMap[key]; ok {
		if v := os.Getenv(envKey); v != "" {
			return v
		}
	}
	return s.values[key]
}

// Set stores a value in memory and persists the whole map to the user-global
// file.
func (s *Store) Set(key, value string) {
	s.values[key] = value
	s.sources[key] = SourceUser
	s.save()
}

// Remove deletes a key and persists.
func (s *Store) Remove(key string) {
	delete(s.values, key)
	delete(s.sources, key)
	s.save()
}

// Clear drops every stored key and persists the now-empty map.
func (s *Store) Clear() {
	s.values = make(map[string]string)
	s.sources = make(map[string]Source)
	s.save()
}

// All returns the merged view: file values with environment overrides
// applied on top.
func (s *Store) All() map[string]string {
	result := make(map[string]string, len(s.values))
	for k, v := range s.values {
		result[k] = v
	}
	for key, envKey := range envMap {
		if v := os.Getenv(envKey); v != "" {
			result[key] = v
		}
	}
	return result
}

// AllWithSources returns the merged view with each value tagged by origin.
// Environment values additionally carry the .env file path they were loaded
// from, when the EnvLoader tracked one.
func (s *Store) AllWithSources() map[string]Entry {
	result := make(map[string]Entry, len(s.values))
	for k, v := range s.values {
		result[k] = Entry{Value: v, Source: s.sources[k]}
	}
	for key, envKey := range envMap {
		v := os.Getenv(envKey)
		if v == "" {
			continue
		}
		e := Entry{Value: v, Source: SourceEnv}
		if s.env != nil {
			e.Path = s.env.Source(envKey)
		}
		result[key] = e
	}
	return result
}

// Path returns the user-global config file path, or "" when the home
// directory could not be determined.
func (s *Store) Path() string {
	return s.userPath
}

// save serializes the entire in-memory map to the user-global file as pretty
// JSON with a trailing newline. Writes are best-effort: with no user path
// there is nowhere to write, and I/O failures are swallowed so that a
// read-only home directory never breaks the command that triggered the save.
func (s *Store) save() {
	if s.userPath == "" {
		return
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.userPath), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(s.userPath, append(data, '\n'), 0o600)
}
