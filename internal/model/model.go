package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of Task.DueDate (calendar date, no time).
const DateLayout = "2006-01-02"

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists the priority levels in display (and cycle) order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// ParsePriority accepts any casing of Low/Medium/High. An empty string yields Medium.
func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PriorityMedium, nil
	}
	for _, p := range Priorities {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q (want Low|Medium|High)", s)
}

func (p Priority) Valid() bool {
	for _, x := range Priorities {
		if p == x {
			return true
		}
	}
	return false
}

// Next returns the priority after p, wrapping High back to Low.
func (p Priority) Next() Priority {
	for i, x := range Priorities {
		if p == x {
			return Priorities[(i+1)%len(Priorities)]
		}
	}
	return PriorityMedium
}

type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
}

func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

type Task struct {
	ID        string   `json:"id"`
	UserID    string   `json:"userID"`
	Title     string   `json:"title"`
	DueDate   string   `json:"dueDate"`
	Priority  Priority `json:"priority"`
	Completed bool     `json:"completed"`
}

// Session is what the client caches after a successful login.
type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session token is past its expiry at now.
// A zero ExpiresAt never expires (used by tests and legacy caches).
func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}
