// Package txnid generates transaction identifiers.
package txnid

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a fresh transaction id: a time-ordered UUIDv7 rendered as 32
// lowercase hex characters without separators. It panics if the system random
// source fails.
func New() string {
	id := uuid.Must(uuid.NewV7())
	return hex.EncodeToString(id[:])
}

// Valid reports whether id has the shape produced by New.
func Valid(id string) bool {
	if len(id) != 32 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
