// Package uuid issues article record IDs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator hands out time-ordered UUIDv7 strings so stored rows sort by
// insertion time.
type Generator struct{}

// New returns a Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a fresh UUIDv7.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate record id: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
