package web

import (
	"errors"
	"net/http"
	"strings"

	"taskboard/internal/board"
	"taskboard/internal/model"
	"taskboard/internal/session"
	"taskboard/internal/store"
)

type loginVM struct {
	Theme string
	Email string
	Error string
}

type pageVM struct {
	Theme      string
	User       model.User
	Tasks      []model.Task
	Form       board.Form
	EditingID  string
	TitleErr   string
	DueDateErr string
	Error      string
	Priorities []model.Priority
}

func pageFor(theme string, sess model.Session, b *board.Board) pageVM {
	titleErr, dueErr := b.FieldErrors()
	return pageVM{
		Theme:      theme,
		User:       sess.User,
		Tasks:      b.Tasks(),
		Form:       b.Form(),
		EditingID:  b.EditingID(),
		TitleErr:   titleErr,
		DueDateErr: dueErr,
		Error:      b.Err(),
		Priorities: model.Priorities,
	}
}

// signedIn is the request-scoped view of a valid browser session.
type signedIn struct {
	id   string
	gate *session.Gate
	sess model.Session
	svc  board.Service
}

// requireSession redirects to /login (and returns ok=false) unless the cookie maps to an
// unexpired session.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (signedIn, bool) {
	id, gate, isNew, err := s.gates.forRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return signedIn{}, false
	}
	if isNew {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return signedIn{}, false
	}
	sess, err := gate.Current()
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			s.gates.drop(id)
			clearSessionCookie(w, s.cfg.SecureCookies)
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return signedIn{}, false
	}
	return signedIn{id: id, gate: gate, sess: sess, svc: s.cfg.Services(sess)}, true
}

// expired handles a backend 401 by dropping the session and sending the user to /login.
func (s *Server) expired(w http.ResponseWriter, r *http.Request, si signedIn) {
	_ = si.gate.Expire()
	s.gates.drop(si.id)
	clearSessionCookie(w, s.cfg.SecureCookies)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// themeFor is the theme to render: the gate's once the browser has one, else the theme cookie.
func themeFor(r *http.Request, gate *session.Gate, isNew bool) string {
	if isNew {
		return store.NormalizeTheme(themeCookie(r))
	}
	return gate.Theme()
}

func (s *Server) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	_, gate, isNew, err := s.gates.forRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := gate.Current(); err == nil {
		http.Redirect(w, r, "/tasks", http.StatusSeeOther)
		return
	}
	s.writeHTMLTemplate(w, http.StatusOK, "login.html", loginVM{Theme: themeFor(r, gate, isNew)})
}

func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, gate, isNew, err := s.gates.forRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if theme := themeCookie(r); isNew && theme != "" {
		if _, err := gate.SetTheme(theme); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	email := strings.TrimSpace(r.Form.Get("email"))
	sess, err := gate.Login(r.Context(), email, r.Form.Get("password"))
	if err != nil {
		status := http.StatusUnauthorized
		switch {
		case errors.Is(err, session.ErrLoginInFlight):
			status = http.StatusConflict
		case errors.Is(err, session.ErrMissingCredentials):
			status = http.StatusBadRequest
		case !errors.Is(err, session.ErrInvalidCredentials):
			status = http.StatusBadGateway
			s.log.WithError(err).Warn("web login failed")
		}
		s.writeHTMLTemplate(w, status, "login.html", loginVM{Theme: gate.Theme(), Email: email, Error: err.Error()})
		return
	}

	s.gates.keep(id, gate)
	setSessionCookie(w, id, s.cfg.SecureCookies)
	s.log.WithField("user", sess.User.ID).Info("web sign in")
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func (s *Server) handleLogoutPost(w http.ResponseWriter, r *http.Request) {
	id, gate, isNew, err := s.gates.forRequest(r)
	if err == nil && !isNew {
		if err := gate.Logout(r.Context()); err != nil {
			s.log.WithError(err).Warn("web logout revocation failed")
		}
		s.gates.drop(id)
	}
	clearSessionCookie(w, s.cfg.SecureCookies)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, gate, isNew, err := s.gates.forRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	theme := strings.TrimSpace(r.Form.Get("theme"))
	if theme == "" || theme == "toggle" {
		theme = store.ToggleTheme(themeFor(r, gate, isNew))
	}
	theme = store.NormalizeTheme(theme)
	if !isNew {
		if _, err := gate.SetTheme(theme); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	// The cookie outlives the session, so the login page keeps the theme after sign out.
	setThemeCookie(w, theme, s.cfg.SecureCookies)
	redirectBack(w, r, "/tasks")
}

func redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	ref := strings.TrimSpace(r.Header.Get("Referer"))
	if ref != "" {
		http.Redirect(w, r, ref, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, fallback, http.StatusSeeOther)
}

// loadBoard fetches the user's tasks. It writes the response itself and returns ok=false when
// the backend rejected the session.
func (s *Server) loadBoard(w http.ResponseWriter, r *http.Request, si signedIn) (*board.Board, bool) {
	b := board.New(si.sess.User.ID)
	if err := b.Load(r.Context(), si.svc); err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			s.expired(w, r, si)
			return nil, false
		}
		s.log.WithError(err).Warn("web load tasks")
	}
	return b, true
}

func (s *Server) renderBoard(w http.ResponseWriter, status int, si signedIn, b *board.Board) {
	s.writeHTMLTemplate(w, status, "tasks.html", pageFor(si.gate.Theme(), si.sess, b))
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	si, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	b, ok := s.loadBoard(w, r, si)
	if !ok {
		return
	}
	s.renderBoard(w, http.StatusOK, si, b)
}

func (s *Server) handleTaskEdit(w http.ResponseWriter, r *http.Request) {
	si, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	b, ok := s.loadBoard(w, r, si)
	if !ok {
		return
	}
	if err := b.Edit(r.PathValue("id")); err != nil {
		http.NotFound(w, r)
		return
	}
	s.renderBoard(w, http.StatusOK, si, b)
}

func (s *Server) handleTaskSubmit(w http.ResponseWriter, r *http.Request) {
	si, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, ok := s.loadBoard(w, r, si)
	if !ok {
		return
	}

	if id := strings.TrimSpace(r.Form.Get("editingID")); id != "" {
		if err := b.Edit(id); err != nil {
			http.NotFound(w, r)
			return
		}
	}
	b.SetTitle(r.Form.Get("title"))
	b.SetDueDate(r.Form.Get("dueDate"))
	prio, err := model.ParsePriority(r.Form.Get("priority"))
	if err != nil {
		http.Error(w, model.ErrInvalidPriority.Error(), http.StatusBadRequest)
		return
	}
	b.SetPriority(prio)

	op, err := b.Submit()
	if err != nil {
		s.renderBoard(w, http.StatusUnprocessableEntity, si, b)
		return
	}
	s.finish(w, r, si, b, op)
}

func (s *Server) handleTaskToggle(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, (*board.Board).Toggle)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, (*board.Board).Delete)
}

func (s *Server) taskAction(w http.ResponseWriter, r *http.Request, start func(*board.Board, string) (board.Op, error)) {
	si, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	b, ok := s.loadBoard(w, r, si)
	if !ok {
		return
	}
	op, err := start(b, r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.finish(w, r, si, b, op)
}

// finish runs op, notifies the user's open streams and redirects back to the list.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, si signedIn, b *board.Board, op board.Op) {
	res := board.Run(r.Context(), si.svc, op)
	err := b.Apply(res)
	if res.Err == nil {
		s.hubs.broadcast(si.sess.User.ID)
	}
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			s.expired(w, r, si)
			return
		}
		s.log.WithError(err).WithField("op", op.Kind.String()).Warn("web board op")
		s.renderBoard(w, http.StatusBadGateway, si, b)
		return
	}
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	si, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	hub := s.hubs.hubFor(si.sess.User.ID)
	s.serveDatastarElementsStream(w, r, hub, "#task-list", func() (string, error) {
		b := board.New(si.sess.User.ID)
		if err := b.Load(r.Context(), si.svc); err != nil {
			return "", err
		}
		return s.renderTemplate("task_list", pageFor(si.gate.Theme(), si.sess, b))
	})
}
