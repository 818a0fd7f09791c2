// Package web serves the task board as server-rendered HTML with live list updates over
// datastar server-sent events.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/starfederation/datastar-go/datastar"

	"taskboard/internal/board"
	"taskboard/internal/model"
	"taskboard/internal/session"
)

//go:embed templates/*.html
var assetsFS embed.FS

const keepAliveInterval = 25 * time.Second

type ServerConfig struct {
	Auth     session.Authenticator
	Services func(model.Session) board.Service
	Logger   *log.Logger

	// SecureCookies marks the session cookie Secure (serve behind TLS).
	SecureCookies bool
}

type Server struct {
	cfg   ServerConfig
	tmpl  *template.Template
	log   *log.Logger
	gates *gates
	hubs  *userHubs
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Auth == nil || cfg.Services == nil {
		return nil, errors.New("web: missing backend")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}

	tmpl, err := template.New("base").Funcs(template.FuncMap{
		"lower": func(p model.Priority) string {
			return strings.ToLower(string(p))
		},
	}).ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:   cfg,
		tmpl:  tmpl,
		log:   cfg.Logger,
		gates: newGates(cfg.Auth),
		hubs:  newUserHubs(),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /login", s.handleLoginGet)
	mux.HandleFunc("POST /login", s.handleLoginPost)
	mux.HandleFunc("POST /logout", s.handleLogoutPost)
	mux.HandleFunc("POST /theme", s.handleTheme)
	mux.HandleFunc("GET /tasks", s.handleTasks)
	mux.HandleFunc("POST /tasks", s.handleTaskSubmit)
	mux.HandleFunc("GET /tasks/events", s.handleTaskEvents)
	mux.HandleFunc("GET /tasks/{id}/edit", s.handleTaskEdit)
	mux.HandleFunc("POST /tasks/{id}/toggle", s.handleTaskToggle)
	mux.HandleFunc("POST /tasks/{id}/delete", s.handleTaskDelete)
	return mux
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("web ui listening")
		errCh <- hs.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func (s *Server) renderTemplate(name string, data any) (string, error) {
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *Server) writeHTMLTemplate(w http.ResponseWriter, status int, name string, data any) {
	html, err := s.renderTemplate(name, data)
	if err != nil {
		s.log.WithError(err).WithField("template", name).Error("render")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, html)
}

// serveDatastarElementsStream re-renders selector every time hub fires, until the client leaves.
func (s *Server) serveDatastarElementsStream(w http.ResponseWriter, r *http.Request, hub *resourceHub, selector string, render func() (string, error)) {
	// Subscribe before the headers go out so a client that saw the response never misses a change.
	ch, cancel := hub.subscribe()
	defer cancel()

	sse := datastar.NewSSE(w, r)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case <-ch:
			html, err := render()
			if err != nil {
				s.log.WithError(err).Warn("render stream patch")
				_ = sse.ExecuteScript(fmt.Sprintf(`console.error(%q)`, err.Error()))
				continue
			}
			if strings.TrimSpace(html) == "" {
				continue
			}
			_ = sse.PatchElements(html, datastar.WithSelector(selector), datastar.WithMode(datastar.ElementPatchModeOuter))
		}
	}
}
