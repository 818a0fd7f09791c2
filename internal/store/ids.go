package store

import "github.com/google/uuid"

// NewID returns a random (v4) uuid string, used for user and task identifiers.
func NewID() string {
	return uuid.NewString()
}
