package domain

import "time"

// User is the backing record for the bundled local identity provider. The
// core session and RBAC services never read users directly; they only see
// identities through the provider interface.
type User struct {
	ID           string
	Email        string
	PasswordHash string // argon2id encoded
	Disabled     bool

	// TokensRevokedAt, when set, invalidates every access token issued
	// before it. Logout bumps this for the whole identity.
	TokensRevokedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
