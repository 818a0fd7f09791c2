package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"taskboard/internal/auth"
	"taskboard/internal/model"
	"taskboard/internal/store"
)

const invalidCredentials = "Invalid email or password"

func (s *Server) healthz(c echo.Context) error {
	if _, err := s.db.ListTasks(c.Request().Context(), ""); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "store unavailable")
	}
	return c.NoContent(http.StatusOK)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid login body")
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Email and password are required")
	}

	ctx := c.Request().Context()
	u, hash, err := s.db.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.log.WithField("email", email).Info("login rejected: unknown email")
		return echo.NewHTTPError(http.StatusUnauthorized, invalidCredentials)
	}
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(hash, req.Password) {
		s.log.WithField("user", u.ID).Info("login rejected: bad password")
		return echo.NewHTTPError(http.StatusUnauthorized, invalidCredentials)
	}

	tok, exp, err := s.tokens.Issue(u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Session{User: u, Token: tok, ExpiresAt: exp})
}

func (s *Server) logout(c echo.Context) error {
	cl := claimsOf(c)
	if cl == nil || cl.ID == "" {
		return c.NoContent(http.StatusNoContent)
	}
	until := time.Now().Add(time.Hour)
	if cl.ExpiresAt != nil {
		until = cl.ExpiresAt.Time
	}
	if err := s.revoker.Revoke(c.Request().Context(), cl.ID, until); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) me(c echo.Context) error {
	u, err := s.db.UserByID(c.Request().Context(), userID(c))
	if errors.Is(err, store.ErrNotFound) {
		// Token outlived its user.
		return echo.NewHTTPError(http.StatusUnauthorized, "user no longer exists")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) listTasks(c echo.Context) error {
	uid := userID(c)
	if q := strings.TrimSpace(c.QueryParam("userID")); q != "" && q != uid {
		return echo.NewHTTPError(http.StatusForbidden, "cannot list another user's tasks")
	}
	tasks, err := s.db.ListTasks(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

type taskRequest struct {
	UserID    string `json:"userID"`
	Title     string `json:"title"`
	DueDate   string `json:"dueDate"`
	Priority  string `json:"priority"`
	Completed bool   `json:"completed"`
}

// task validates req and returns the record it describes, owned by uid.
func (req taskRequest) task(uid string) (model.Task, error) {
	if req.UserID != "" && req.UserID != uid {
		return model.Task{}, echo.NewHTTPError(http.StatusForbidden, "cannot write another user's tasks")
	}
	prio, err := model.ParsePriority(req.Priority)
	if err != nil {
		return model.Task{}, echo.NewHTTPError(http.StatusBadRequest, model.ErrInvalidPriority.Error())
	}
	t := model.Task{
		UserID:    uid,
		Title:     strings.TrimSpace(req.Title),
		DueDate:   strings.TrimSpace(req.DueDate),
		Priority:  prio,
		Completed: req.Completed,
	}
	if err := t.Validate(); err != nil {
		return model.Task{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return t, nil
}

func (s *Server) createTask(c echo.Context) error {
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task body")
	}
	t, err := req.task(userID(c))
	if err != nil {
		return err
	}
	t.ID = store.NewID()
	out, err := s.db.InsertTask(c.Request().Context(), t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (s *Server) replaceTask(c echo.Context) error {
	var req taskRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task body")
	}
	t, err := req.task(userID(c))
	if err != nil {
		return err
	}
	t.ID = c.Param("id")
	out, err := s.db.ReplaceTask(c.Request().Context(), t)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, out)
}

type patchRequest struct {
	Completed *bool `json:"completed"`
}

func (s *Server) patchTask(c echo.Context) error {
	var req patchRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patch body")
	}
	if req.Completed == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "completed is required")
	}
	out, err := s.db.SetCompleted(c.Request().Context(), userID(c), c.Param("id"), *req.Completed)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) deleteTask(c echo.Context) error {
	if err := s.db.DeleteTask(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return notFound(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return err
}
