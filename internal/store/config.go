package store

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendRemote = "remote"
	BackendLocal  = "local"

	DefaultAPIURL = "http://127.0.0.1:3000"
)

// Config holds persisted preferences. Every field is optional; flags and env win.
type Config struct {
	APIURL  string `json:"apiUrl,omitempty"`
	Backend string `json:"backend,omitempty"`
	DBPath  string `json:"dbPath,omitempty"`

	// HTTPTimeout is a Go duration string (e.g. "10s").
	HTTPTimeout string `json:"httpTimeout,omitempty"`
}

func NormalizeBackend(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", BackendRemote:
		return BackendRemote, nil
	case BackendLocal:
		return BackendLocal, nil
	default:
		return "", errors.New("backend must be remote or local")
	}
}

func (s Store) LoadConfig() (*Config, error) {
	b, err := os.ReadFile(s.ConfigPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s Store) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := s.Ensure(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path := s.ConfigPath()

	// Keep a copy of the previous config; ignore errors so a bad backup never blocks a save.
	if prev, err := os.ReadFile(path); err == nil && len(prev) > 0 {
		_ = atomicWriteFile(s.Dir, "config.json.bak.*.tmp", path+".bak", prev, 0o644)
	}
	return atomicWriteFile(s.Dir, "config.json.*.tmp", path, b, 0o600)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into the process
// environment. Variables already set are not overridden and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}
