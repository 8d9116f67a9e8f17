package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
	"github.com/tidewater/gatehouse/internal/auth/store/drivers/memory"
)

func newThrottleEngine(now *time.Time) *ThrottleEngine {
	return &ThrottleEngine{
		Store:  memory.NewStore(),
		Config: DefaultThrottleConfig(),
		Now:    func() time.Time { return *now },
	}
}

func TestThrottleEngine_BackoffCurve(t *testing.T) {
	now := time.Now().UTC()
	e := newThrottleEngine(&now)
	ctx := context.Background()
	key := ThrottleKey("alice@example.com", "203.0.113.7")

	t.Run("no record means no delay", func(t *testing.T) {
		require.Zero(t, e.Delay(ctx, key))
	})

	t.Run("below threshold means no delay", func(t *testing.T) {
		for range 4 {
			e.RecordFailure(ctx, key)
		}
		require.Zero(t, e.Delay(ctx, key))
	})

	t.Run("fifth failure imposes 2s", func(t *testing.T) {
		e.RecordFailure(ctx, key) // count now 5
		require.Equal(t, 2*time.Second, e.Delay(ctx, key))
	})

	t.Run("seventh failure imposes 8s", func(t *testing.T) {
		e.RecordFailure(ctx, key)
		e.RecordFailure(ctx, key) // count now 7
		require.Equal(t, 8*time.Second, e.Delay(ctx, key))
	})

	t.Run("delay is monotonically non-decreasing", func(t *testing.T) {
		prev := e.Delay(ctx, key)
		for range 20 {
			e.RecordFailure(ctx, key)
			d := e.Delay(ctx, key)
			require.GreaterOrEqual(t, d, prev)
			prev = d
		}
	})

	t.Run("delay is capped at max", func(t *testing.T) {
		require.Equal(t, e.Config.MaxDelay, e.Delay(ctx, key))
	})

	t.Run("success clears immediately", func(t *testing.T) {
		e.RecordSuccess(ctx, key)
		require.Zero(t, e.Delay(ctx, key))
	})
}

func TestThrottleEngine_WindowExpiry(t *testing.T) {
	now := time.Now().UTC()
	e := newThrottleEngine(&now)
	ctx := context.Background()
	key := ThrottleKey("bob@example.com", "198.51.100.2")

	for range 6 {
		e.RecordFailure(ctx, key)
	}
	require.Positive(t, e.Delay(ctx, key))

	now = now.Add(e.Config.Window + time.Minute)
	require.Zero(t, e.Delay(ctx, key))

	// The lapsed window also resets the counter for subsequent failures.
	e.RecordFailure(ctx, key)
	require.Zero(t, e.Delay(ctx, key))
}

func TestThrottleEngine_KeyIsolation(t *testing.T) {
	now := time.Now().UTC()
	e := newThrottleEngine(&now)
	ctx := context.Background()

	victim := ThrottleKey("carol@example.com", "203.0.113.7")
	for range 6 {
		e.RecordFailure(ctx, victim)
	}

	require.Positive(t, e.Delay(ctx, victim))
	require.Zero(t, e.Delay(ctx, ThrottleKey("carol@example.com", "203.0.113.8")))
	require.Zero(t, e.Delay(ctx, ThrottleKey("dave@example.com", "203.0.113.7")))
}

// brokenThrottleStore simulates a storage outage on the throttle table
// only.
type brokenThrottleStore struct {
	store.Store
}

type brokenThrottles struct{}

var errStorageDown = errors.New("storage down")

func (brokenThrottleStore) LoginThrottles() store.LoginThrottles { return brokenThrottles{} }

func (brokenThrottles) GetThrottle(context.Context, string) (domain.ThrottleRecord, error) {
	return domain.ThrottleRecord{}, errStorageDown
}
func (brokenThrottles) PutThrottle(context.Context, domain.ThrottleRecord) error {
	return errStorageDown
}
func (brokenThrottles) DeleteThrottle(context.Context, string) error { return errStorageDown }
func (brokenThrottles) DeleteStaleThrottles(context.Context, time.Time) error {
	return errStorageDown
}

func TestThrottleEngine_FailsOpenOnStorageError(t *testing.T) {
	e := &ThrottleEngine{
		Store:  brokenThrottleStore{Store: memory.NewStore()},
		Config: DefaultThrottleConfig(),
	}
	ctx := context.Background()
	key := ThrottleKey("eve@example.com", "192.0.2.1")

	require.Equal(t, e.Config.FailOpenDelay, e.Delay(ctx, key))

	// Recording must not panic or surface the storage error either.
	e.RecordFailure(ctx, key)
	e.RecordSuccess(ctx, key)
}
