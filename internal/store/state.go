package store

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"taskboard/internal/model"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// State is the client's local cache: the signed-in session and the UI theme.
//
// It is best effort: a missing or corrupt file loads as an empty state (no session).
type State struct {
	Version int            `json:"version"`
	Session *model.Session `json:"session,omitempty"`
	Theme   string         `json:"theme,omitempty"`
}

func NormalizeTheme(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), ThemeDark) {
		return ThemeDark
	}
	return ThemeLight
}

func ToggleTheme(s string) string {
	if NormalizeTheme(s) == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

func (s Store) LoadState() (*State, error) {
	if strings.TrimSpace(s.Dir) == "" {
		return &State{Version: 1}, nil
	}
	b, err := os.ReadFile(s.StatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{Version: 1}, nil
		}
		return nil, err
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		// Treat a corrupted cache as signed out.
		return &State{Version: 1}, nil
	}
	if st.Version == 0 {
		st.Version = 1
	}
	if st.Session != nil && strings.TrimSpace(st.Session.User.ID) == "" {
		st.Session = nil
	}
	return &st, nil
}

func (s Store) SaveState(st *State) error {
	if st == nil {
		return nil
	}
	if err := s.Ensure(); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	// The session token lives here; keep it private to the user.
	return atomicWriteFile(s.Dir, "state.json.*.tmp", s.StatePath(), b, 0o600)
}
