// Package idgen generates and validates the identifiers used across the
// system: UUID v4 for aggregate IDs and ULIDs for event IDs, which sort
// lexicographically by creation time.
package idgen

import (
	"crypto/rand"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var uuidV4Pattern = regexp.MustCompile(`^(?i)[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// New returns a random UUID v4 string from a cryptographic source.
func New() string {
	return uuid.NewString()
}

// IsValid reports whether s is a well-formed UUID v4 (case-insensitive).
func IsValid(s string) bool {
	return uuidV4Pattern.MatchString(s)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a ULID for a freshly emitted event. Monotonic entropy
// keeps IDs created within the same millisecond ordered.
func NewEventID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
