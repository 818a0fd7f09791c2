// Package collection is the REST client for the task collection service (`taskboard serve`).
package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/session"
)

const DefaultTimeout = 10 * time.Second

var (
	// ErrUnauthorized wraps session.ErrUnauthorized so callers can match either.
	ErrUnauthorized = fmt.Errorf("collection: %w", session.ErrUnauthorized)
	ErrForbidden    = errors.New("collection: forbidden")
	ErrNotFound     = errors.New("collection: not found")
)

// StatusError is any other non-2xx reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("collection: HTTP %d", e.Code)
	}
	return e.Message
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for baseURL. timeout <= 0 uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) BaseURL() string { return c.baseURL }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login implements session.Authenticator. A 401 is reported as session.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (model.Session, error) {
	var out model.Session
	err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &out)
	if errors.Is(err, ErrUnauthorized) {
		return model.Session{}, session.ErrInvalidCredentials
	}
	if err != nil {
		return model.Session{}, err
	}
	return out, nil
}

// Logout revokes token server side.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.WithToken(token).do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (c *Client) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	path := "/tasks"
	if userID != "" {
		path += "?" + url.Values{"userID": {userID}}.Encode()
	}
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Task{}
	}
	return out, nil
}

type taskBody struct {
	UserID    string         `json:"userID"`
	Title     string         `json:"title"`
	DueDate   string         `json:"dueDate"`
	Priority  model.Priority `json:"priority"`
	Completed bool           `json:"completed"`
}

func bodyOf(t model.Task) taskBody {
	return taskBody{UserID: t.UserID, Title: t.Title, DueDate: t.DueDate, Priority: t.Priority, Completed: t.Completed}
}

// CreateTask posts t; the server assigns the id.
func (c *Client) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", bodyOf(t), &out); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

// ReplaceTask sends the full record.
func (c *Client) ReplaceTask(ctx context.Context, t model.Task) (model.Task, error) {
	if strings.TrimSpace(t.ID) == "" {
		return model.Task{}, errors.New("replace task: missing id")
	}
	var out model.Task
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(t.ID), t, &out); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

// SetCompleted patches only the completed flag. userID is implied by the token.
func (c *Client) SetCompleted(ctx context.Context, _ string, id string, completed bool) (model.Task, error) {
	var out model.Task
	body := map[string]bool{"completed": completed}
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), body, &out); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

func (c *Client) DeleteTask(ctx context.Context, _ string, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusError(code int, raw []byte) error {
	var eb errorBody
	msg := ""
	if json.Unmarshal(raw, &eb) == nil {
		msg = strings.TrimSpace(eb.Error)
		if msg == "" {
			msg = strings.TrimSpace(eb.Message)
		}
	}
	switch code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	if msg == "" {
		msg = strings.TrimSpace(http.StatusText(code))
	}
	return &StatusError{Code: code, Message: msg}
}
