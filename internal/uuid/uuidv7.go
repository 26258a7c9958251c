// Package uuid issues the time-ordered identifiers used as primary keys,
// request ids and lock tokens.
package uuid

import (
	"time"

	googleuuid "github.com/google/uuid"
)

// New returns a UUIDv7 string. Rows created in one unit of work sort in
// creation order, which keeps ledger listings stable on an id tiebreak.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		return googleuuid.NewString()
	}
	return id.String()
}

// Parse returns s in canonical lowercase form, or an error when s is not a UUID.
func Parse(s string) (string, error) {
	parsed, err := googleuuid.Parse(s)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// CreatedAt reports the millisecond timestamp embedded in a UUIDv7. ok is
// false for other versions.
func CreatedAt(s string) (t time.Time, ok bool) {
	parsed, err := googleuuid.Parse(s)
	if err != nil || parsed.Version() != 7 {
		return time.Time{}, false
	}
	sec, nsec := parsed.Time().UnixTime()
	return time.Unix(sec, nsec), true
}
