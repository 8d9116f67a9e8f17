package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
	"github.com/tidewater/gatehouse/pkg/cryptox"
	"github.com/tidewater/gatehouse/pkg/slogx"
)

// ThrottleConfig tunes the login backoff curve.
type ThrottleConfig struct {
	// Window is how long a failure counter stays live without new
	// failures before it is treated as expired.
	Window time.Duration

	// Threshold is the failure count at which delays start.
	Threshold int

	// BaseDelay is the first imposed delay once the threshold is hit.
	BaseDelay time.Duration

	// CapExponent bounds the backoff exponent to prevent overflow.
	CapExponent int

	// MaxDelay is the ceiling on any imposed delay.
	MaxDelay time.Duration

	// FailOpenDelay is imposed when the counter store is unreachable. A
	// storage outage must neither disable throttling nor lock everyone out.
	FailOpenDelay time.Duration
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Window:        time.Hour,
		Threshold:     5,
		BaseDelay:     time.Second,
		CapExponent:   10,
		MaxDelay:      10 * time.Minute,
		FailOpenDelay: 5 * time.Second,
	}
}

// ThrottleEngine imposes exponentially growing delays on repeated failed
// logins per (identity, origin) pair. It is deliberately decoupled from
// the volumetric rate limiter in pkg/httpx.
type ThrottleEngine struct {
	Store  store.Store
	Config ThrottleConfig

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (e *ThrottleEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ThrottleKey derives the counter key for an (email, origin) pair. The
// fingerprint keeps raw emails out of the throttle table.
func ThrottleKey(email, originIP string) string {
	normalized := strings.ToLower(strings.TrimSpace(email)) + "|" + originIP
	return cryptox.FingerprintToken(normalized)
}

// Delay returns the wait currently imposed on the key. It never returns an
// error: a missing or stale record means no delay, and a storage failure
// falls open to a fixed moderate delay.
func (e *ThrottleEngine) Delay(ctx context.Context, key string) time.Duration {
	now := e.now()

	rec, err := e.Store.LoginThrottles().GetThrottle(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0
		}
		slogx.FromContext(ctx).Warn("throttle lookup failed, imposing fail-open delay",
			slog.Any("error", err))
		return e.Config.FailOpenDelay
	}

	if rec.Stale(now, e.Config.Window) {
		// Best effort; the stale record is ignored either way.
		if err := e.Store.LoginThrottles().DeleteThrottle(ctx, key); err != nil {
			slogx.FromContext(ctx).Warn("stale throttle cleanup failed", slog.Any("error", err))
		}
		return 0
	}

	if rec.Count < e.Config.Threshold {
		return 0
	}

	// count == threshold yields the first backoff step (exponent 1).
	exp := rec.Count - e.Config.Threshold + 1
	if exp > e.Config.CapExponent {
		exp = e.Config.CapExponent
	}

	delay := e.Config.BaseDelay << exp
	if delay > e.Config.MaxDelay {
		delay = e.Config.MaxDelay
	}
	return delay
}

// RecordFailure bumps the failure counter, restarting it when the window
// has lapsed. Storage failures are logged, never surfaced; a failed login
// must not turn into a 500 because bookkeeping broke.
func (e *ThrottleEngine) RecordFailure(ctx context.Context, key string) {
	now := e.now()

	rec, err := e.Store.LoginThrottles().GetThrottle(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = domain.ThrottleRecord{Key: key, Count: 1, LastAttemptAt: now}
	case err != nil:
		slogx.FromContext(ctx).Warn("throttle failure lookup failed", slog.Any("error", err))
		return
	case rec.Stale(now, e.Config.Window):
		rec = domain.ThrottleRecord{Key: key, Count: 1, LastAttemptAt: now}
	default:
		rec.Count++
		rec.LastAttemptAt = now
	}

	if err := e.Store.LoginThrottles().PutThrottle(ctx, rec); err != nil {
		slogx.FromContext(ctx).Warn("throttle failure record failed", slog.Any("error", err))
	}
}

// RecordSuccess clears the counter after a successful login.
func (e *ThrottleEngine) RecordSuccess(ctx context.Context, key string) {
	if err := e.Store.LoginThrottles().DeleteThrottle(ctx, key); err != nil {
		slogx.FromContext(ctx).Warn("throttle success clear failed", slog.Any("error", err))
	}
}
