// Package local runs the task collection in-process over the SQLite store, for use without a
// server (--backend local).
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskboard/internal/auth"
	"taskboard/internal/model"
	"taskboard/internal/session"
	"taskboard/internal/store"
)

var ErrNotFound = errors.New("task not found")

// Backend implements board.Service and session.Authenticator.
type Backend struct {
	db     *store.Collection
	tokens *auth.Tokens
}

func New(db *store.Collection, tokens *auth.Tokens) *Backend {
	return &Backend{db: db, tokens: tokens}
}

// Open opens (or creates) the SQLite file and the signing key under s.
func Open(ctx context.Context, s store.Store, dbPath string) (*Backend, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = s.DBPath()
	}
	db, err := store.OpenCollection(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	secret, err := auth.LoadOrInitSecret(s.SecretPath())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, auth.NewTokens(secret, auth.DefaultTokenTTL)), nil
}

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) Collection() *store.Collection { return b.db }

func (b *Backend) Login(ctx context.Context, email, password string) (model.Session, error) {
	u, hash, err := b.db.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return model.Session{}, session.ErrInvalidCredentials
	}
	if err != nil {
		return model.Session{}, err
	}
	if !auth.VerifyPassword(hash, password) {
		return model.Session{}, session.ErrInvalidCredentials
	}
	tok, exp, err := b.tokens.Issue(u.ID)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{User: u, Token: tok, ExpiresAt: exp}, nil
}

// Logout is a no-op locally; tokens simply expire.
func (b *Backend) Logout(context.Context, string) error { return nil }

// Authorize verifies token and returns the user it was issued to.
func (b *Backend) Authorize(ctx context.Context, token string) (model.User, error) {
	claims, err := b.tokens.Verify(token)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", session.ErrUnauthorized, err)
	}
	u, err := b.db.UserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, session.ErrUnauthorized
		}
		return model.User{}, err
	}
	return u, nil
}

func (b *Backend) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	return b.db.ListTasks(ctx, userID)
}

func (b *Backend) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	t.ID = store.NewID()
	return b.db.InsertTask(ctx, t)
}

func (b *Backend) ReplaceTask(ctx context.Context, t model.Task) (model.Task, error) {
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	out, err := b.db.ReplaceTask(ctx, t)
	return out, notFound(err)
}

func (b *Backend) SetCompleted(ctx context.Context, userID, id string, completed bool) (model.Task, error) {
	out, err := b.db.SetCompleted(ctx, userID, id, completed)
	return out, notFound(err)
}

func (b *Backend) DeleteTask(ctx context.Context, userID, id string) error {
	return notFound(b.db.DeleteTask(ctx, userID, id))
}

// AddUser hashes password and stores a new user.
func (b *Backend) AddUser(ctx context.Context, u model.User, password string) (model.User, error) {
	return AddUser(ctx, b.db, u, password)
}

// AddUser is shared with the server's `users add` seeding path.
func AddUser(ctx context.Context, db *store.Collection, u model.User, password string) (model.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	return db.CreateUser(ctx, u, hash)
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// ForToken returns the task service for a signed-in session. Every call re-verifies the token,
// so an expired session surfaces as session.ErrUnauthorized like it does remotely.
func (b *Backend) ForToken(token string) *Scoped {
	return &Scoped{b: b, token: token}
}

type Scoped struct {
	b     *Backend
	token string
}

func (s *Scoped) check(ctx context.Context, userID string) error {
	u, err := s.b.Authorize(ctx, s.token)
	if err != nil {
		return err
	}
	if userID != "" && userID != u.ID {
		return fmt.Errorf("%w: token belongs to another user", session.ErrUnauthorized)
	}
	return nil
}

func (s *Scoped) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	if err := s.check(ctx, userID); err != nil {
		return nil, err
	}
	return s.b.ListTasks(ctx, userID)
}

func (s *Scoped) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if err := s.check(ctx, t.UserID); err != nil {
		return model.Task{}, err
	}
	return s.b.CreateTask(ctx, t)
}

func (s *Scoped) ReplaceTask(ctx context.Context, t model.Task) (model.Task, error) {
	if err := s.check(ctx, t.UserID); err != nil {
		return model.Task{}, err
	}
	return s.b.ReplaceTask(ctx, t)
}

func (s *Scoped) SetCompleted(ctx context.Context, userID, id string, completed bool) (model.Task, error) {
	if err := s.check(ctx, userID); err != nil {
		return model.Task{}, err
	}
	return s.b.SetCompleted(ctx, userID, id, completed)
}

func (s *Scoped) DeleteTask(ctx context.Context, userID, id string) error {
	if err := s.check(ctx, userID); err != nil {
		return err
	}
	return s.b.DeleteTask(ctx, userID, id)
}
