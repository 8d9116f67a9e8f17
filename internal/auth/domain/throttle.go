package domain

import "time"

// ThrottleRecord is a sliding counter of failed login attempts for one
// (identity, origin) pair. Created on first failure, incremented within
// the attempt window, deleted on success or expiry.
type ThrottleRecord struct {
	Key           string // fingerprint of "email|originIP"
	Count         int
	LastAttemptAt time.Time
}

// Stale reports whether the record's last attempt is older than the window.
func (r ThrottleRecord) Stale(now time.Time, window time.Duration) bool {
	return now.Sub(r.LastAttemptAt) > window
}
