// Package session is the Session Gate: it decides whether the task view may be shown,
// based on a cached, unexpired session, and owns the login/logout transitions.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/store"
)

var (
	ErrNoSession          = errors.New("not signed in")
	ErrSessionExpired     = errors.New("session expired; sign in again")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrMissingCredentials = errors.New("Email and password are required")
	ErrLoginInFlight      = errors.New("login already in progress")

	// ErrUnauthorized is returned by backends when the session token is rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// Authenticator exchanges credentials for a session and revokes tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (model.Session, error)
	Logout(ctx context.Context, token string) error
}

// Cache persists the session between runs. store.Store satisfies it.
type Cache interface {
	LoadState() (*store.State, error)
	SaveState(st *store.State) error
}

type Gate struct {
	auth  Authenticator
	cache Cache
	now   func() time.Time

	inFlight atomic.Bool

	// mu serializes read-modify-write of the state file.
	mu sync.Mutex
}

func NewGate(auth Authenticator, cache Cache) *Gate {
	return &Gate{auth: auth, cache: cache, now: time.Now}
}

// Current returns the cached session. An expired one is cleared from the cache.
func (g *Gate) Current() (model.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.cache.LoadState()
	if err != nil {
		return model.Session{}, err
	}
	if st.Session == nil || strings.TrimSpace(st.Session.Token) == "" {
		return model.Session{}, ErrNoSession
	}
	if st.Session.Expired(g.now()) {
		st.Session = nil
		if err := g.cache.SaveState(st); err != nil {
			return model.Session{}, err
		}
		return model.Session{}, ErrSessionExpired
	}
	return *st.Session, nil
}

// Login authenticates once (no retry) and caches the session on success.
func (g *Gate) Login(ctx context.Context, email, password string) (model.Session, error) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return model.Session{}, ErrLoginInFlight
	}
	defer g.inFlight.Store(false)

	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return model.Session{}, ErrMissingCredentials
	}

	sess, err := g.auth.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return model.Session{}, ErrInvalidCredentials
		}
		return model.Session{}, fmt.Errorf("Login failed: %w", err)
	}
	if strings.TrimSpace(sess.User.ID) == "" || strings.TrimSpace(sess.Token) == "" {
		return model.Session{}, errors.New("Login failed: incomplete session from server")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.cache.LoadState()
	if err != nil {
		return model.Session{}, err
	}
	st.Session = &sess
	if err := g.cache.SaveState(st); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// LoggingIn reports whether a Login call is running.
func (g *Gate) LoggingIn() bool { return g.inFlight.Load() }

// Logout clears the cached session (keeping the theme) and revokes the token best effort.
// The returned error is the revocation error, if any; the cache is cleared regardless.
func (g *Gate) Logout(ctx context.Context) error {
	token, err := g.clear()
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	if err := g.auth.Logout(ctx, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Expire drops the cached session without contacting the backend. Front ends call it when a
// privileged request fails with ErrUnauthorized.
func (g *Gate) Expire() error {
	_, err := g.clear()
	return err
}

func (g *Gate) clear() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.cache.LoadState()
	if err != nil {
		return "", err
	}
	if st.Session == nil {
		return "", nil
	}
	token := st.Session.Token
	st.Session = nil
	return token, g.cache.SaveState(st)
}

// Theme returns the persisted theme name.
func (g *Gate) Theme() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.cache.LoadState()
	if err != nil {
		return store.ThemeLight
	}
	return store.NormalizeTheme(st.Theme)
}

// SetTheme persists theme and returns the normalized name.
func (g *Gate) SetTheme(theme string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, err := g.cache.LoadState()
	if err != nil {
		return "", err
	}
	st.Theme = store.NormalizeTheme(theme)
	return st.Theme, g.cache.SaveState(st)
}
