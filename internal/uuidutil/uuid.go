package uuidutil

import (
	"github.com/google/uuid"
)

// New generates a new random UUID v4. Runs are stamped with one so their
// artifacts can be told apart.
func New() uuid.UUID {
	return uuid.New()
}
