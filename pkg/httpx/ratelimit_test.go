package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":54321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddleware_FixedWindow(t *testing.T) {
	now := time.Now()
	counters := NewMemoryCounterStore()
	counters.Now = func() time.Time { return now }

	cfg := RateLimitConfig{Name: "test", Limit: 3, Window: time.Minute}
	h := Chain(okHandler(), RateLimitMiddleware(cfg, counters, IPKeyExtractor))

	t.Run("requests within limit pass with headers", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			rec := doRequest(t, h, "203.0.113.7")
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
			require.Equal(t, strconv.Itoa(3-i), rec.Header().Get("X-RateLimit-Remaining"))
			require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
		}
	})

	t.Run("request over limit is rejected with retry hint", func(t *testing.T) {
		rec := doRequest(t, h, "203.0.113.7")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Contains(t, rec.Body.String(), "RATE_LIMITED")
	})

	t.Run("other keys are unaffected", func(t *testing.T) {
		rec := doRequest(t, h, "198.51.100.9")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		rec := doRequest(t, h, "203.0.113.7")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "2", rec.Header().Get("X-RateLimit-Remaining"))
	})
}

func TestRateLimitMiddleware_CountFailuresOnly(t *testing.T) {
	counters := NewMemoryCounterStore()
	cfg := RateLimitConfig{Name: "login", Limit: 2, Window: time.Minute, CountFailuresOnly: true}

	fail := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	okChain := Chain(okHandler(), RateLimitMiddleware(cfg, counters, IPKeyExtractor))
	failChain := Chain(fail, RateLimitMiddleware(cfg, counters, IPKeyExtractor))

	// Successes are refunded, so they never exhaust the budget.
	for range 5 {
		rec := doRequest(t, okChain, "203.0.113.7")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Failures burn budget.
	for range 2 {
		rec := doRequest(t, failChain, "203.0.113.7")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := doRequest(t, failChain, "203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitMiddleware_RetryHintMatchesReset(t *testing.T) {
	now := time.Now().Add(-time.Hour)
	counters := NewMemoryCounterStore()
	counters.Now = func() time.Time { return now }

	cfg := RateLimitConfig{
		Name: "test", Limit: 1, Window: time.Minute,
		Now: func() time.Time { return now },
	}
	h := Chain(okHandler(), RateLimitMiddleware(cfg, counters, IPKeyExtractor))

	require.Equal(t, http.StatusOK, doRequest(t, h, "203.0.113.7").Code)

	// The retry hint is computed on the limiter's clock, so it agrees
	// with the reset header instead of drifting with wall time.
	rec := doRequest(t, h, "203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	reset := strconv.FormatInt(now.Add(time.Minute).Unix(), 10)
	require.Equal(t, reset, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimitMiddleware_RefundStaysInWindow(t *testing.T) {
	now := time.Now()
	counters := NewMemoryCounterStore()
	counters.Now = func() time.Time { return now }

	cfg := RateLimitConfig{
		Name: "login", Limit: 2, Window: time.Minute,
		CountFailuresOnly: true,
		Now:               func() time.Time { return now },
	}

	fail := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	failChain := Chain(fail, RateLimitMiddleware(cfg, counters, IPKeyExtractor))

	// A slow successful request outlives its window while a failure
	// lands in the next one.
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now = now.Add(2 * time.Minute)
		inner := doRequest(t, failChain, "203.0.113.7")
		require.Equal(t, http.StatusUnauthorized, inner.Code)
		w.WriteHeader(http.StatusOK)
	})
	slowChain := Chain(slow, RateLimitMiddleware(cfg, counters, IPKeyExtractor))

	rec := doRequest(t, slowChain, "203.0.113.7")
	require.Equal(t, http.StatusOK, rec.Code)

	// The slow request's refund must not credit the new window: one more
	// failure fills it and the next is rejected.
	rec = doRequest(t, failChain, "203.0.113.7")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doRequest(t, failChain, "203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitMiddleware_RejectionHook(t *testing.T) {
	counters := NewMemoryCounterStore()
	rejected := 0
	cfg := RateLimitConfig{
		Name: "test", Limit: 1, Window: time.Minute,
		OnReject: func() { rejected++ },
	}
	h := Chain(okHandler(), RateLimitMiddleware(cfg, counters, IPKeyExtractor))

	doRequest(t, h, "203.0.113.7")
	doRequest(t, h, "203.0.113.7")
	doRequest(t, h, "203.0.113.7")
	require.Equal(t, 2, rejected)
}

func TestIPKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	require.Equal(t, "192.0.2.10", IPKeyExtractor(req))

	req.Header.Set("X-Real-IP", "203.0.113.50")
	require.Equal(t, "203.0.113.50", IPKeyExtractor(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	require.Equal(t, "198.51.100.1", IPKeyExtractor(req))
}

func TestRedisCounterStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisCounterStore(client)
	ctx := context.Background()

	t.Run("increments within a window", func(t *testing.T) {
		for want := 1; want <= 3; want++ {
			count, reset, err := store.Incr(ctx, "k1", time.Minute)
			require.NoError(t, err)
			require.Equal(t, want, count)
			require.True(t, reset.After(time.Now()))
		}
	})

	t.Run("window expiry starts fresh", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		count, _, err := store.Incr(ctx, "k1", time.Minute)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("decr refunds within the window", func(t *testing.T) {
		_, _, err := store.Incr(ctx, "k2", time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.Decr(ctx, "k2"))

		count, _, err := store.Incr(ctx, "k2", time.Minute)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("decr on a missing key is a no-op", func(t *testing.T) {
		require.NoError(t, store.Decr(ctx, "never-seen"))
	})
}
