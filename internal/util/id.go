package util

import "github.com/google/uuid"

// NewID returns a random identifier for users and history records.
func NewID() string {
	return uuid.NewString()
}
