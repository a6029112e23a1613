package dflow

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for workflow instance ids, execution (attempt) ids, and the
// correlation id minted on every HostToGuest response.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Now returns the current wall-clock time. Centralized so every "created"
// timestamp in the data model goes through one call site.
func Now() time.Time {
	return time.Now()
}
