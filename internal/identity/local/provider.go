// Package local is the bundled identity provider: argon2id password
// records in the store, EdDSA-signed access tokens, and a per-identity
// revocation cutoff instead of a token denylist.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/store"
	"github.com/tidewater/gatehouse/internal/identity"
	"github.com/tidewater/gatehouse/pkg/cryptox"
	"github.com/tidewater/gatehouse/pkg/jwtx"
)

type Provider struct {
	store    store.Store
	signer   *jwtx.Signer
	verifier *jwtx.Verifier
	issuer   string
	ttl      time.Duration
	now      func() time.Time
}

type Option func(*Provider)

// WithAccessTokenTTL overrides jwtx.DefaultAccessTokenTTL.
func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.ttl = ttl }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func NewProvider(s store.Store, kp jwtx.KeyPair, issuer string, opts ...Option) *Provider {
	p := &Provider{
		store:    s,
		signer:   jwtx.NewSigner(kp),
		verifier: jwtx.NewVerifier(kp, issuer, 30*time.Second),
		issuer:   issuer,
		ttl:      jwtx.DefaultAccessTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) GetIdentityByEmail(ctx context.Context, email string) (identity.Identity, error) {
	u, err := p.store.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return identity.Identity{}, identity.ErrIdentityNotFound
		}
		return identity.Identity{}, fmt.Errorf("lookup identity: %w", err)
	}
	return identity.Identity{ID: u.ID, Email: u.Email, Disabled: u.Disabled}, nil
}

func (p *Provider) VerifyPassword(ctx context.Context, identityID, password string) error {
	u, err := p.store.Users().GetUserByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return identity.ErrIdentityNotFound
		}
		return fmt.Errorf("lookup identity: %w", err)
	}
	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		return identity.ErrPasswordMismatch
	}
	return nil
}

func (p *Provider) IssueAccessToken(ctx context.Context, identityID string) (string, time.Duration, error) {
	u, err := p.store.Users().GetUserByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", 0, identity.ErrIdentityNotFound
		}
		return "", 0, fmt.Errorf("lookup identity: %w", err)
	}
	if u.Disabled {
		return "", 0, identity.ErrIdentityDisabled
	}

	claims := jwtx.NewAccessClaims(u.ID, u.Email, p.issuer, p.ttl, p.now().UTC())
	token, err := p.signer.Sign(claims)
	if err != nil {
		return "", 0, err
	}
	return token, p.ttl, nil
}

func (p *Provider) VerifyToken(ctx context.Context, token string) (identity.Claims, error) {
	claims, err := p.verifier.Verify(token)
	if err != nil {
		return identity.Claims{}, identity.ErrTokenInvalid
	}

	u, err := p.store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		// An identity deleted after issuance means its tokens are dead.
		if errors.Is(err, store.ErrNotFound) {
			return identity.Claims{}, identity.ErrTokenInvalid
		}
		return identity.Claims{}, fmt.Errorf("lookup identity: %w", err)
	}
	if u.Disabled {
		return identity.Claims{}, identity.ErrIdentityDisabled
	}

	// iat carries second precision; Truncate the cutoff to match so a
	// token minted in the same second as the revocation is still killed.
	issuedAt := claims.IssuedAt.Time
	if u.TokensRevokedAt != nil && !issuedAt.After(u.TokensRevokedAt.Truncate(time.Second)) {
		return identity.Claims{}, identity.ErrTokenInvalid
	}

	return identity.Claims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		IssuedAt:  issuedAt,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (p *Provider) RevokeAllAccessTokens(ctx context.Context, identityID string) error {
	err := p.store.Users().SetTokensRevokedAt(ctx, identityID, p.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return identity.ErrIdentityNotFound
		}
		return fmt.Errorf("revoke access tokens: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
