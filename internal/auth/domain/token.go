package domain

import "time"

// RefreshToken models a stored refresh token record. The opaque secret is
// handed to the caller exactly once at login; only its SHA-256 fingerprint
// is persisted. A user may hold many records concurrently (multi-device).
type RefreshToken struct {
	ID         string
	TokenHash  string // deterministic fingerprint (base64url SHA-256)
	UserID     string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
	OriginIP   string
	UserAgent  string
}

// Expired reports whether the record is past its expiry at the given time.
func (t RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Session is what a successful login returns.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	UserID       string
}

// RefreshedSession is what a successful refresh returns. The refresh token
// itself is not rotated, so it is not echoed back.
type RefreshedSession struct {
	AccessToken string
	ExpiresIn   time.Duration
	UserID      string
}
