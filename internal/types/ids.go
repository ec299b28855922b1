package types

import (
	"time"

	"github.com/google/uuid"
)

// NewUUID generates a UUIDv7 global identifier for a locally created record.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseUUID validates a global identifier.
// Imported records may carry any UUID version; only the syntax is checked.
func ParseUUID(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// UUIDTime extracts the timestamp embedded in a UUIDv7 identifier.
// Returns zero time for other versions or invalid input.
func UUIDTime(s string) time.Time {
	u, err := uuid.Parse(s)
	if err != nil || u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
