package store

import (
	"os"
	"reflect"
	"testing"
	"time"

	"taskboard/internal/model"
)

func TestState_SaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := Store{Dir: dir}

	// Missing file => signed out, default version.
	st0, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if st0 == nil || st0.Version != 1 || st0.Session != nil {
		t.Fatalf("expected empty state; got %#v", st0)
	}

	want := &State{
		Version: 1,
		Session: &model.Session{
			User:      model.User{ID: "u-1", FirstName: "Ada", Email: "a@b.com"},
			Token:     "tok",
			ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Theme: ThemeDark,
	}
	if err := s.SaveState(want); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	got, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState (after save): %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("roundtrip mismatch:\nwant: %#v\ngot:  %#v", want, got)
	}

	info, err := os.Stat(s.StatePath())
	if err != nil {
		t.Fatalf("stat state: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected state.json to be 0600, got %v", info.Mode().Perm())
	}
}

func TestState_CorruptFileLoadsSignedOut(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := Store{Dir: dir}
	if err := os.WriteFile(s.StatePath(), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	st, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if st.Session != nil {
		t.Fatalf("expected no session from corrupt cache; got %#v", st.Session)
	}
}

func TestState_SessionWithoutUserIDIsDropped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := Store{Dir: dir}
	raw := []byte(`{"version":1,"session":{"user":{"email":"a@b.com"},"token":"x"},"theme":"dark"}`)
	if err := os.WriteFile(s.StatePath(), raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	st, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if st.Session != nil {
		t.Fatalf("expected session without user id to be ignored")
	}
	if st.Theme != ThemeDark {
		t.Fatalf("expected theme to survive; got %q", st.Theme)
	}
}

func TestThemeHelpers(t *testing.T) {
	if NormalizeTheme("DARK") != ThemeDark || NormalizeTheme("weird") != ThemeLight {
		t.Fatalf("NormalizeTheme mismatch")
	}
	if ToggleTheme(ThemeLight) != ThemeDark || ToggleTheme(ThemeDark) != ThemeLight {
		t.Fatalf("ToggleTheme mismatch")
	}
}
