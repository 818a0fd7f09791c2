package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	configFileName = "config.json"
	stateFileName  = "state.json"
	dbFileName     = "taskboard.sqlite"
	secretFileName = "secret.key"
)

// Store is the client's per-user directory (default ~/.taskboard).
//
// It holds config.json (preferences), state.json (cached session + theme), and, for the
// local backend, taskboard.sqlite.
type Store struct {
	Dir string
}

// DefaultDir resolves the store directory.
func DefaultDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.taskboard).
	if v := strings.TrimSpace(os.Getenv("TASKBOARD_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".taskboard"), nil
}

func (s Store) Ensure() error {
	if strings.TrimSpace(s.Dir) == "" {
		return errors.New("store: missing dir")
	}
	return os.MkdirAll(s.Dir, 0o755)
}

func (s Store) ConfigPath() string { return filepath.Join(s.Dir, configFileName) }
func (s Store) StatePath() string  { return filepath.Join(s.Dir, stateFileName) }
func (s Store) DBPath() string     { return filepath.Join(s.Dir, dbFileName) }
func (s Store) SecretPath() string { return filepath.Join(s.Dir, secretFileName) }

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}
