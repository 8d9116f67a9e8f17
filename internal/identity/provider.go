// Package identity defines the seam between the session service and
// whatever issues and verifies access tokens. The session and RBAC layers
// only ever see this interface; the bundled local provider lives in the
// local subpackage and alternative providers (an external IdP, a stub in
// tests) drop in behind the same contract.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTokenInvalid covers every verification failure the caller should
	// not distinguish: bad signature, malformed, expired, revoked.
	ErrTokenInvalid = errors.New("identity: token invalid")

	// ErrIdentityNotFound is returned when no identity matches the email.
	ErrIdentityNotFound = errors.New("identity: not found")

	// ErrIdentityDisabled is returned for administratively disabled
	// identities on both lookup-for-login and token verification.
	ErrIdentityDisabled = errors.New("identity: disabled")

	// ErrPasswordMismatch is returned by VerifyPassword on a wrong
	// password.
	ErrPasswordMismatch = errors.New("identity: password mismatch")
)

// Identity is the provider's view of a user, shorn of any credential
// material beyond what the session service needs.
type Identity struct {
	ID       string
	Email    string
	Disabled bool
}

// Claims is the verified content of an access token.
type Claims struct {
	Subject   string // identity ID
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Provider issues and verifies access tokens and authenticates primary
// credentials. Implementations must be safe for concurrent use.
type Provider interface {
	// GetIdentityByEmail resolves an identity for the login flow.
	GetIdentityByEmail(ctx context.Context, email string) (Identity, error)

	// VerifyPassword checks the identity's primary credential. It must
	// take comparable time for right and wrong passwords.
	VerifyPassword(ctx context.Context, identityID, password string) error

	// IssueAccessToken mints a short-lived access token for the identity
	// and reports its lifetime.
	IssueAccessToken(ctx context.Context, identityID string) (token string, ttl time.Duration, err error)

	// VerifyToken validates an access token end to end, including any
	// provider-side revocation state, and returns its claims.
	VerifyToken(ctx context.Context, token string) (Claims, error)

	// RevokeAllAccessTokens invalidates every access token issued to the
	// identity before now. Used by full logout.
	RevokeAllAccessTokens(ctx context.Context, identityID string) error
}
