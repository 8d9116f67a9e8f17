package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store/drivers/memory"
	"github.com/tidewater/gatehouse/internal/identity/local"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/cryptox"
	"github.com/tidewater/gatehouse/pkg/jwtx"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-horse!"
	testIP       = "203.0.113.7"
	testUA       = "gatehouse-test/1.0"
)

type sessionFixture struct {
	svc      *SessionService
	store    *memory.Store
	provider *local.Provider
	userID   string
	clock    *time.Time
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	s := memory.NewStore()
	kp, err := jwtx.GenerateKeyPair()
	require.NoError(t, err)

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	clock := time.Now().UTC()
	now := func() time.Time { return clock }

	u := domain.User{
		ID:           "01HUSER00000000000000000001",
		Email:        testEmail,
		PasswordHash: hash,
		CreatedAt:    clock,
		UpdatedAt:    clock,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))

	provider := local.NewProvider(s, kp, "gatehouse-test", local.WithClock(now))
	svc := &SessionService{
		Store:    s,
		Provider: provider,
		Throttle: &ThrottleEngine{Store: s, Config: DefaultThrottleConfig(), Now: now},
		Now:      now,
	}
	return &sessionFixture{svc: svc, store: s, provider: provider, userID: u.ID, clock: &clock}
}

func TestSessionService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success returns both tokens", func(t *testing.T) {
		f := newSessionFixture(t)

		sess, err := f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.NoError(t, err)
		require.Equal(t, f.userID, sess.UserID)
		require.NotEmpty(t, sess.AccessToken)
		require.NotEmpty(t, sess.RefreshToken)
		require.Equal(t, jwtx.DefaultAccessTokenTTL, sess.ExpiresIn)

		// The stored record holds the fingerprint, never the secret.
		rec, err := f.store.RefreshTokens().GetRefreshTokenByHash(
			ctx, cryptox.FingerprintToken(sess.RefreshToken))
		require.NoError(t, err)
		require.Equal(t, f.userID, rec.UserID)
		require.Equal(t, testIP, rec.OriginIP)
		require.NotEqual(t, sess.RefreshToken, rec.TokenHash)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newSessionFixture(t)
		_, err := f.svc.Login(ctx, testEmail, "wrong", testIP, testUA)
		require.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	})

	t.Run("unknown email indistinguishable from wrong password", func(t *testing.T) {
		f := newSessionFixture(t)
		_, err := f.svc.Login(ctx, "nobody@example.com", testPassword, testIP, testUA)
		require.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	})

	t.Run("disabled account", func(t *testing.T) {
		f := newSessionFixture(t)
		require.NoError(t, f.store.Users().SetUserDisabled(ctx, f.userID, true))
		_, err := f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.ErrorIs(t, err, apperr.ErrAccountDisabled)
	})

	t.Run("throttled after repeated failures", func(t *testing.T) {
		f := newSessionFixture(t)
		for range 5 {
			_, err := f.svc.Login(ctx, testEmail, "wrong", testIP, testUA)
			require.ErrorIs(t, err, apperr.ErrInvalidCredentials)
		}

		_, err := f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.Equal(t, apperr.KindThrottled, apperr.KindOf(err))
		require.Equal(t, 2*time.Second, apperr.RetryAfterOf(err))

		// A different origin is not throttled.
		sess, err := f.svc.Login(ctx, testEmail, testPassword, "198.51.100.9", testUA)
		require.NoError(t, err)
		require.NotEmpty(t, sess.AccessToken)
	})

	t.Run("success clears the throttle counter", func(t *testing.T) {
		f := newSessionFixture(t)
		for range 4 {
			_, _ = f.svc.Login(ctx, testEmail, "wrong", testIP, testUA)
		}
		_, err := f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.NoError(t, err)

		// Counter was cleared, so four more failures still stay below
		// the threshold.
		for range 4 {
			_, err = f.svc.Login(ctx, testEmail, "wrong", testIP, testUA)
			require.ErrorIs(t, err, apperr.ErrInvalidCredentials)
		}
		_, err = f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.NoError(t, err)
	})
}

func TestSessionService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		f := newSessionFixture(t)
		sess, err := f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.NoError(t, err)

		*f.clock = f.clock.Add(time.Hour)
		refreshed, err := f.svc.Refresh(ctx, sess.RefreshToken, testIP)
		require.NoError(t, err)
		require.Equal(t, f.userID, refreshed.UserID)
		require.NotEmpty(t, refreshed.AccessToken)

		// The refresh token is not rotated; it keeps working.
		_, err = f.svc.Refresh(ctx, sess.RefreshToken, testIP)
		require.NoError(t, err)

		// LastUsedAt moved forward.
		rec, err := f.store.RefreshTokens().GetRefreshTokenByHash(
			ctx, cryptox.FingerprintToken(sess.RefreshToken))
		require.NoError(t, err)
		require.True(t, rec.LastUsedAt.After(rec.IssuedAt))
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newSessionFixture(t)
		_, err := f.svc.Refresh(ctx, "never-issued", testIP)
		require.ErrorIs(t, err, apperr.ErrInvalidRefresh)
	})

	t.Run("expired token is rejected and deleted", func(t *testing.T) {
		f := newSessionFixture(t)
		sess, err := f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.NoError(t, err)

		*f.clock = f.clock.Add(DefaultRefreshTokenTTL + time.Hour)
		_, err = f.svc.Refresh(ctx, sess.RefreshToken, testIP)
		require.ErrorIs(t, err, apperr.ErrRefreshExpired)

		// Second use now reports invalid, not expired: the record is gone.
		_, err = f.svc.Refresh(ctx, sess.RefreshToken, testIP)
		require.ErrorIs(t, err, apperr.ErrInvalidRefresh)
	})

	t.Run("origin mismatch is allowed", func(t *testing.T) {
		f := newSessionFixture(t)
		sess, err := f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.NoError(t, err)

		refreshed, err := f.svc.Refresh(ctx, sess.RefreshToken, "198.51.100.200")
		require.NoError(t, err)
		require.NotEmpty(t, refreshed.AccessToken)
	})

	t.Run("disabled account cannot refresh", func(t *testing.T) {
		f := newSessionFixture(t)
		sess, err := f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.NoError(t, err)

		require.NoError(t, f.store.Users().SetUserDisabled(ctx, f.userID, true))
		_, err = f.svc.Refresh(ctx, sess.RefreshToken, testIP)
		require.ErrorIs(t, err, apperr.ErrInvalidRefresh)
	})
}

func TestSessionService_Logout(t *testing.T) {
	ctx := context.Background()

	login := func(t *testing.T, f *sessionFixture) domain.Session {
		t.Helper()
		sess, err := f.svc.Login(ctx, testEmail, testPassword, testIP, testUA)
		require.NoError(t, err)
		return sess
	}

	t.Run("specific token", func(t *testing.T) {
		f := newSessionFixture(t)
		a := login(t, f)
		*f.clock = f.clock.Add(time.Second)
		b := login(t, f)

		require.NoError(t, f.svc.Logout(ctx, f.userID, LogoutOptions{RefreshToken: a.RefreshToken}))

		_, err := f.svc.Refresh(ctx, a.RefreshToken, testIP)
		require.ErrorIs(t, err, apperr.ErrInvalidRefresh)
		_, err = f.svc.Refresh(ctx, b.RefreshToken, testIP)
		require.NoError(t, err)
	})

	t.Run("specific token that does not exist", func(t *testing.T) {
		f := newSessionFixture(t)
		login(t, f)
		err := f.svc.Logout(ctx, f.userID, LogoutOptions{RefreshToken: "never-issued"})
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("all devices", func(t *testing.T) {
		f := newSessionFixture(t)
		a := login(t, f)
		*f.clock = f.clock.Add(time.Second)
		b := login(t, f)

		require.NoError(t, f.svc.Logout(ctx, f.userID, LogoutOptions{AllDevices: true}))

		_, err := f.svc.Refresh(ctx, a.RefreshToken, testIP)
		require.ErrorIs(t, err, apperr.ErrInvalidRefresh)
		_, err = f.svc.Refresh(ctx, b.RefreshToken, testIP)
		require.ErrorIs(t, err, apperr.ErrInvalidRefresh)
	})

	t.Run("default removes most recently used session", func(t *testing.T) {
		f := newSessionFixture(t)
		a := login(t, f)
		*f.clock = f.clock.Add(time.Minute)
		b := login(t, f)

		require.NoError(t, f.svc.Logout(ctx, f.userID, LogoutOptions{}))

		_, err := f.svc.Refresh(ctx, b.RefreshToken, testIP)
		require.ErrorIs(t, err, apperr.ErrInvalidRefresh)
		_, err = f.svc.Refresh(ctx, a.RefreshToken, testIP)
		require.NoError(t, err)
	})

	t.Run("revokes outstanding access tokens", func(t *testing.T) {
		f := newSessionFixture(t)
		sess := login(t, f)

		_, err := f.provider.VerifyToken(ctx, sess.AccessToken)
		require.NoError(t, err)

		*f.clock = f.clock.Add(5 * time.Second)
		require.NoError(t, f.svc.Logout(ctx, f.userID, LogoutOptions{AllDevices: true}))

		_, err = f.provider.VerifyToken(ctx, sess.AccessToken)
		require.Error(t, err)
	})
}
