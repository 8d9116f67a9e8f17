package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store/drivers/memory"
	"github.com/tidewater/gatehouse/internal/identity"
	"github.com/tidewater/gatehouse/pkg/cryptox"
	"github.com/tidewater/gatehouse/pkg/jwtx"
)

const testIssuer = "gatehouse-test"

func newTestProvider(t *testing.T, opts ...Option) (*Provider, *memory.Store, domain.User) {
	t.Helper()

	s := memory.NewStore()
	kp, err := jwtx.GenerateKeyPair()
	require.NoError(t, err)

	hash, err := cryptox.HashPassword("hunter2!")
	require.NoError(t, err)

	now := time.Now().UTC()
	u := domain.User{
		ID:           "01HUSER00000000000000000001",
		Email:        "alice@example.com",
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))

	return NewProvider(s, kp, testIssuer, opts...), s, u
}

func TestProvider_PasswordVerification(t *testing.T) {
	p, _, u := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.VerifyPassword(ctx, u.ID, "hunter2!"))

	err := p.VerifyPassword(ctx, u.ID, "wrong")
	require.ErrorIs(t, err, identity.ErrPasswordMismatch)

	err = p.VerifyPassword(ctx, "missing", "hunter2!")
	require.ErrorIs(t, err, identity.ErrIdentityNotFound)
}

func TestProvider_IssueAndVerify(t *testing.T) {
	p, _, u := newTestProvider(t)
	ctx := context.Background()

	token, ttl, err := p.IssueAccessToken(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, jwtx.DefaultAccessTokenTTL, ttl)

	claims, err := p.VerifyToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.Equal(t, u.Email, claims.Email)

	t.Run("garbage token rejected", func(t *testing.T) {
		_, err := p.VerifyToken(ctx, "not.a.jwt")
		require.ErrorIs(t, err, identity.ErrTokenInvalid)
	})

	t.Run("token from another key rejected", func(t *testing.T) {
		other, err := jwtx.GenerateKeyPair()
		require.NoError(t, err)
		forged, err := jwtx.NewSigner(other).Sign(
			jwtx.NewAccessClaims(u.ID, u.Email, testIssuer, time.Minute, time.Now()))
		require.NoError(t, err)

		_, err = p.VerifyToken(ctx, forged)
		require.ErrorIs(t, err, identity.ErrTokenInvalid)
	})
}

func TestProvider_DisabledIdentity(t *testing.T) {
	p, s, u := newTestProvider(t)
	ctx := context.Background()

	token, _, err := p.IssueAccessToken(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, s.Users().SetUserDisabled(ctx, u.ID, true))

	_, err = p.VerifyToken(ctx, token)
	require.ErrorIs(t, err, identity.ErrIdentityDisabled)

	_, _, err = p.IssueAccessToken(ctx, u.ID)
	require.ErrorIs(t, err, identity.ErrIdentityDisabled)
}

func TestProvider_RevocationCutoff(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	clock := base
	p, _, u := newTestProvider(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	early, _, err := p.IssueAccessToken(ctx, u.ID)
	require.NoError(t, err)

	clock = base.Add(10 * time.Second)
	require.NoError(t, p.RevokeAllAccessTokens(ctx, u.ID))

	_, err = p.VerifyToken(ctx, early)
	require.ErrorIs(t, err, identity.ErrTokenInvalid)

	clock = base.Add(20 * time.Second)
	late, _, err := p.IssueAccessToken(ctx, u.ID)
	require.NoError(t, err)

	claims, err := p.VerifyToken(ctx, late)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
}

func TestProvider_EmailLookupNormalizes(t *testing.T) {
	p, _, u := newTestProvider(t)

	got, err := p.GetIdentityByEmail(context.Background(), "  Alice@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
}
