package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskboard/internal/model"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Collection is the SQLite-backed users + tasks store. It backs both the local backend and
// the collection service (`taskboard serve`).
type Collection struct {
	db *sql.DB
}

// collectionPragmas are applied by the driver to each new connection.
var collectionPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

func collectionDSN(path string) string {
	q := url.Values{"_pragma": collectionPragmas}
	return path + "?" + q.Encode()
}

func OpenCollection(ctx context.Context, path string) (*Collection, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite: missing path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite". The pragmas go in the DSN so every pooled
	// connection gets them, not just the first. WAL enables one writer + many readers;
	// busy_timeout avoids "database is locked" when the TUI, CLI and server share a file.
	db, err := sql.Open("sqlite", collectionDSN(path))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrateCollection(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Collection{db: db}, nil
}

func (c *Collection) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func migrateCollection(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			due_date TEXT NOT NULL,
			priority TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts u with the given password hash. An empty u.ID gets a fresh id.
func (c *Collection) CreateUser(ctx context.Context, u model.User, passwordHash string) (model.User, error) {
	u.Email = normalizeEmail(u.Email)
	if u.Email == "" {
		return model.User{}, errors.New("user missing email")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return model.User{}, errors.New("user missing password hash")
	}
	if strings.TrimSpace(u.ID) == "" {
		u.ID = NewID()
	}
	if _, _, err := c.UserByEmail(ctx, u.Email); err == nil {
		return model.User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return model.User{}, err
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO users(id, email, first_name, last_name, password_hash, created_at_unixms) VALUES(?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, strings.TrimSpace(u.FirstName), strings.TrimSpace(u.LastName), passwordHash, time.Now().UnixMilli(),
	)
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

// UserByEmail returns the user and its password hash.
func (c *Collection) UserByEmail(ctx context.Context, email string) (model.User, string, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, password_hash FROM users WHERE email = ?`,
		normalizeEmail(email),
	)
	var u model.User
	var hash string
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, "", ErrNotFound
		}
		return model.User{}, "", err
	}
	return u, hash, nil
}

func (c *Collection) UserByID(ctx context.Context, id string) (model.User, error) {
	row := c.db.QueryRowContext(ctx, `SELECT id, email, first_name, last_name FROM users WHERE id = ?`, id)
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

const taskColumns = `id, user_id, title, due_date, priority, completed`

func scanTask(sc interface{ Scan(...any) error }) (model.Task, error) {
	var t model.Task
	var prio string
	var completed int
	if err := sc.Scan(&t.ID, &t.UserID, &t.Title, &t.DueDate, &prio, &completed); err != nil {
		return model.Task{}, err
	}
	t.Priority = model.Priority(prio)
	t.Completed = completed != 0
	return t, nil
}

// ListTasks returns userID's tasks in creation order.
func (c *Collection) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTask returns the task only if it belongs to userID.
func (c *Collection) GetTask(ctx context.Context, userID, id string) (model.Task, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, err
	}
	return t, nil
}

// InsertTask stores t. An empty t.ID gets a fresh id.
func (c *Collection) InsertTask(ctx context.Context, t model.Task) (model.Task, error) {
	if strings.TrimSpace(t.UserID) == "" {
		return model.Task{}, errors.New("task missing userID")
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = NewID()
	}
	now := time.Now().UnixMilli()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO tasks(id, user_id, title, due_date, priority, completed, created_at_unixms, updated_at_unixms) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.DueDate, string(t.Priority), boolToInt(t.Completed), now, now,
	)
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// ReplaceTask overwrites every mutable field of the task identified by (t.UserID, t.ID).
func (c *Collection) ReplaceTask(ctx context.Context, t model.Task) (model.Task, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, due_date = ?, priority = ?, completed = ?, updated_at_unixms = ? WHERE id = ? AND user_id = ?`,
		t.Title, t.DueDate, string(t.Priority), boolToInt(t.Completed), time.Now().UnixMilli(), t.ID, t.UserID,
	)
	if err != nil {
		return model.Task{}, err
	}
	if err := requireOneRow(res); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (c *Collection) SetCompleted(ctx context.Context, userID, id string, completed bool) (model.Task, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE tasks SET completed = ?, updated_at_unixms = ? WHERE id = ? AND user_id = ?`,
		boolToInt(completed), time.Now().UnixMilli(), id, userID,
	)
	if err != nil {
		return model.Task{}, err
	}
	if err := requireOneRow(res); err != nil {
		return model.Task{}, err
	}
	return c.GetTask(ctx, userID, id)
}

func (c *Collection) DeleteTask(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
