package engine

import "github.com/google/uuid"

// IDFunc generates vector identifiers.
type IDFunc func() string

// NewID returns a random (version 4) UUID in its canonical string form.
func NewID() string {
	return uuid.NewString()
}
