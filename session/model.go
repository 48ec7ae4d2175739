package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when no session exists for the device.
	ErrSessionNotFound = errors.New("session not found")
	// ErrOwnerMismatch is returned when the device session belongs to another user.
	ErrOwnerMismatch = errors.New("session owner mismatch")
	// ErrIssuedAtMismatch is returned when the stored issuance time differs
	// from the one the caller presented. The presented credential is stale.
	ErrIssuedAtMismatch = errors.New("session issued-at mismatch")
	// ErrStoreUnavailable wraps backend faults (network, I/O, corrupt rows).
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Record is the persisted state of one device session.
//
// IssuedAt and ExpiresAt have seconds resolution; callers should truncate
// before comparing.
type Record struct {
	UserID    string
	DeviceID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	IP        string
	Title     string
}

// Truncate returns a copy of r with timestamps cut to whole seconds.
func (r Record) Truncate() Record {
	r.IssuedAt = time.Unix(r.IssuedAt.Unix(), 0).UTC()
	r.ExpiresAt = time.Unix(r.ExpiresAt.Unix(), 0).UTC()
	return r
}

// TTL returns how long the record should live relative to now. It never
// returns less than minTTL so that a row written right at its deadline is
// still observable by the caller that wrote it.
func (r Record) TTL(now time.Time) time.Duration {
	ttl := r.ExpiresAt.Sub(now)
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

const minTTL = time.Second
