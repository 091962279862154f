package xid

import (
	"github.com/google/uuid"
)

// New returns a random identifier. A non-empty prefix is joined with a dash,
// which keeps draft ids visually distinct from persisted entity ids.
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// Valid reports whether id is a bare uuid as stored by the repositories.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
