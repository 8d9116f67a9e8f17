package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
	"github.com/tidewater/gatehouse/internal/identity"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/cryptox"
	"github.com/tidewater/gatehouse/pkg/idx"
	"github.com/tidewater/gatehouse/pkg/slogx"
)

// DefaultRefreshTokenTTL is how long a refresh token lives. Long-lived;
// the short-lived access token is the thing actually presented per
// request.
const DefaultRefreshTokenTTL = 30 * 24 * time.Hour

// SessionService drives the credential lifecycle: login, refresh, logout.
type SessionService struct {
	Store      store.Store
	Provider   identity.Provider
	Throttle   *ThrottleEngine
	RefreshTTL time.Duration

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SessionService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return DefaultRefreshTokenTTL
}

// Login authenticates primary credentials and establishes a session.
//
// The throttle gate comes first so the delay applies even to junk emails.
// Every failure from the provider that is not an explicit disabled-account
// outcome is normalized to InvalidCredentials so the response does not
// reveal whether the email exists.
func (s *SessionService) Login(
	ctx context.Context,
	email, password, originIP, userAgent string,
) (domain.Session, error) {
	l := slogx.FromContext(ctx)
	key := ThrottleKey(email, originIP)

	if delay := s.Throttle.Delay(ctx, key); delay > 0 {
		l.Info("login throttled", slog.Duration("retry_after", delay))
		return domain.Session{}, apperr.Throttled(delay)
	}

	ident, err := s.Provider.GetIdentityByEmail(ctx, email)
	if err != nil {
		s.Throttle.RecordFailure(ctx, key)
		return domain.Session{}, apperr.ErrInvalidCredentials
	}
	if ident.Disabled {
		s.Throttle.RecordFailure(ctx, key)
		return domain.Session{}, apperr.ErrAccountDisabled
	}

	if err := s.Provider.VerifyPassword(ctx, ident.ID, password); err != nil {
		s.Throttle.RecordFailure(ctx, key)
		return domain.Session{}, apperr.ErrInvalidCredentials
	}

	accessToken, expiresIn, err := s.Provider.IssueAccessToken(ctx, ident.ID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityDisabled) {
			s.Throttle.RecordFailure(ctx, key)
			return domain.Session{}, apperr.ErrAccountDisabled
		}
		return domain.Session{}, apperr.Internal("issue access token", err)
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Session{}, apperr.Internal("mint refresh token", err)
	}

	now := s.now().UTC()
	rec := domain.RefreshToken{
		ID:         idx.New().String(),
		TokenHash:  cryptox.FingerprintToken(secret),
		UserID:     ident.ID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL()),
		LastUsedAt: now,
		OriginIP:   originIP,
		UserAgent:  userAgent,
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rec); err != nil {
		return domain.Session{}, apperr.Database("persist refresh token", err)
	}

	s.Throttle.RecordSuccess(ctx, key)
	l.Info("login succeeded", slog.String("user_id", ident.ID))

	return domain.Session{
		AccessToken:  accessToken,
		RefreshToken: secret,
		ExpiresIn:    expiresIn,
		UserID:       ident.ID,
	}, nil
}

// Refresh exchanges a live refresh token for a fresh access token. The
// refresh token itself is not rotated; revocation is handled by logout
// and by record expiry.
func (s *SessionService) Refresh(
	ctx context.Context,
	refreshToken, originIP string,
) (domain.RefreshedSession, error) {
	l := slogx.FromContext(ctx)
	hash := cryptox.FingerprintToken(refreshToken)

	rec, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RefreshedSession{}, apperr.ErrInvalidRefresh
		}
		return domain.RefreshedSession{}, apperr.Database("lookup refresh token", err)
	}

	now := s.now().UTC()
	if rec.Expired(now) {
		// Reap eagerly; housekeeping would get it eventually.
		if err := s.Store.RefreshTokens().DeleteRefreshToken(ctx, hash, false); err != nil {
			l.Warn("expired refresh token cleanup failed", slog.Any("error", err))
		}
		return domain.RefreshedSession{}, apperr.ErrRefreshExpired
	}

	// Soft check only. A mobile client changing networks is far more
	// common than token theft, so a mismatch is logged for correlation
	// but does not block the refresh.
	if rec.OriginIP != "" && originIP != "" && rec.OriginIP != originIP {
		l.Warn("refresh token used from new origin",
			slog.String("user_id", rec.UserID),
			slog.String("recorded_ip", rec.OriginIP),
			slog.String("request_ip", originIP))
	}

	accessToken, expiresIn, err := s.Provider.IssueAccessToken(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityDisabled) || errors.Is(err, identity.ErrIdentityNotFound) {
			return domain.RefreshedSession{}, apperr.ErrInvalidRefresh
		}
		return domain.RefreshedSession{}, apperr.Internal("issue access token", err)
	}

	if err := s.Store.RefreshTokens().TouchRefreshToken(ctx, hash, now); err != nil {
		l.Warn("refresh token touch failed", slog.Any("error", err))
	}

	return domain.RefreshedSession{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
		UserID:      rec.UserID,
	}, nil
}

// LogoutOptions selects which refresh tokens a logout tears down.
type LogoutOptions struct {
	// RefreshToken, when set, logs out that specific session.
	RefreshToken string

	// AllDevices tears down every session for the user.
	AllDevices bool
}

// Logout deletes refresh token records and revokes outstanding access
// tokens. With neither option set, the most recently used record goes.
func (s *SessionService) Logout(ctx context.Context, userID string, opts LogoutOptions) error {
	l := slogx.FromContext(ctx)

	switch {
	case opts.RefreshToken != "":
		hash := cryptox.FingerprintToken(opts.RefreshToken)
		rec, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.E(apperr.KindNotFound, apperr.CodeNotFound, "refresh token not found")
			}
			return apperr.Database("lookup refresh token", err)
		}
		// Scoped to the caller; another user's token is indistinguishable
		// from a missing one.
		if rec.UserID != userID {
			return apperr.E(apperr.KindNotFound, apperr.CodeNotFound, "refresh token not found")
		}
		if err := s.Store.RefreshTokens().DeleteRefreshToken(ctx, hash, true); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.E(apperr.KindNotFound, apperr.CodeNotFound, "refresh token not found")
			}
			return apperr.Database("delete refresh token", err)
		}

	case opts.AllDevices:
		n, err := s.Store.RefreshTokens().DeleteUserRefreshTokens(ctx, userID)
		if err != nil {
			return apperr.Database("delete refresh tokens", err)
		}
		l.Info("logged out all devices", slog.String("user_id", userID), slog.Int("sessions", n))

	default:
		err := s.Store.RefreshTokens().DeleteMostRecentUserRefreshToken(ctx, userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return apperr.Database("delete refresh token", err)
		}
	}

	if err := s.Provider.RevokeAllAccessTokens(ctx, userID); err != nil {
		return apperr.Internal("revoke access tokens", err)
	}
	return nil
}
