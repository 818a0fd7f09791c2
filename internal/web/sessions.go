package web

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"

	"taskboard/internal/session"
	"taskboard/internal/store"
)

const (
	sessionCookieName = "taskboard_session"

	// themeCookieName carries the theme for visitors who have not signed in, so they
	// never get a gate of their own.
	themeCookieName = "taskboard_theme"
)

// memCache is a session.Cache for one browser session. The web server holds many users at
// once, so their sessions live in memory keyed by cookie instead of in state.json.
type memCache struct {
	mu sync.Mutex
	st store.State
}

func (c *memCache) LoadState() (*store.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := c.st
	if c.st.Session != nil {
		s := *c.st.Session
		cp.Session = &s
	}
	return &cp, nil
}

func (c *memCache) SaveState(st *store.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = *st
	return nil
}

type gates struct {
	mu   sync.Mutex
	auth session.Authenticator
	byID map[string]*session.Gate
}

func newGates(auth session.Authenticator) *gates {
	return &gates{auth: auth, byID: map[string]*session.Gate{}}
}

// forRequest returns the gate for the request's cookie, or a fresh one (and its new id).
func (g *gates) forRequest(r *http.Request) (id string, gate *session.Gate, isNew bool, err error) {
	if c, cerr := r.Cookie(sessionCookieName); cerr == nil && c.Value != "" {
		g.mu.Lock()
		gate = g.byID[c.Value]
		g.mu.Unlock()
		if gate != nil {
			return c.Value, gate, false, nil
		}
	}
	id, err = newSessionID()
	if err != nil {
		return "", nil, false, err
	}
	gate = session.NewGate(g.auth, &memCache{st: store.State{Version: 1}})
	return id, gate, true, nil
}

// keep stores a signed-in gate and drops every gate whose session has ended, so the map
// only ever holds live sessions.
func (g *gates) keep(id string, gate *session.Gate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for other, og := range g.byID {
		if _, err := og.Current(); err != nil {
			delete(g.byID, other)
		}
	}
	g.byID[id] = gate
}

func (g *gates) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byID)
}

func (g *gates) drop(id string) {
	g.mu.Lock()
	delete(g.byID, id)
	g.mu.Unlock()
}

func newSessionID() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func setSessionCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// themeCookie returns the anonymous visitor's theme, or "" when none was chosen.
func themeCookie(r *http.Request) string {
	c, err := r.Cookie(themeCookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	return store.NormalizeTheme(c.Value)
}

func setThemeCookie(w http.ResponseWriter, theme string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     themeCookieName,
		Value:    store.NormalizeTheme(theme),
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
