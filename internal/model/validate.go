package model

import (
	"errors"
	"strings"
	"time"
)

// Field errors are shown verbatim next to the offending input.
var (
	ErrTitleRequired   = errors.New("Title is required")
	ErrDueDateRequired = errors.New("Due date is required")
	ErrDueDateFormat   = errors.New("Due date must be YYYY-MM-DD")
	ErrInvalidPriority = errors.New("Priority must be Low, Medium or High")
)

func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}
	return nil
}

func ValidateDueDate(due string) error {
	due = strings.TrimSpace(due)
	if due == "" {
		return ErrDueDateRequired
	}
	if _, err := time.Parse(DateLayout, due); err != nil {
		return ErrDueDateFormat
	}
	return nil
}

// Validate checks the fields a client may set. Past dates and duplicate titles are allowed.
func (t Task) Validate() error {
	if err := ValidateTitle(t.Title); err != nil {
		return err
	}
	if err := ValidateDueDate(t.DueDate); err != nil {
		return err
	}
	if !t.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}
