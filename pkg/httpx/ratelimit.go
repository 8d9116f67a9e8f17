package httpx

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/slogx"
)

// RateLimitConfig defines one named fixed-window limiter.
type RateLimitConfig struct {
	// Name identifies the limiter in logs and metrics.
	Name string

	// Limit is the number of requests allowed per window.
	Limit int

	// Window is the fixed counting window.
	Window time.Duration

	// CountFailuresOnly refunds the increment for responses below 400,
	// so only failing requests burn budget. Used for the login limiter.
	CountFailuresOnly bool

	// OnReject, when set, is called once per rejected request. The app
	// wires metrics here to keep this package dependency-light.
	OnReject func()

	// Now is the clock; nil means time.Now. Must match the counter
	// store's clock so the Retry-After hint agrees with the reset header.
	Now func() time.Time
}

func (cfg RateLimitConfig) now() time.Time {
	if cfg.Now != nil {
		return cfg.Now()
	}
	return time.Now()
}

// Named limiter profiles. Overridable via environment variables (see
// ParseRateLimitFromEnv).
var (
	// StandardLimit for general authenticated traffic.
	// Override with: RATELIMIT_STANDARD_REQUESTS, RATELIMIT_STANDARD_WINDOW_SEC
	StandardLimit = RateLimitConfig{
		Name:   "standard",
		Limit:  100,
		Window: time.Minute,
	}

	// SensitiveLimit for admin mutation endpoints.
	// Override with: RATELIMIT_SENSITIVE_REQUESTS, RATELIMIT_SENSITIVE_WINDOW_SEC
	SensitiveLimit = RateLimitConfig{
		Name:   "sensitive",
		Limit:  10,
		Window: time.Minute,
	}

	// LoginLimit for credential endpoints, keyed by origin to resist
	// multi-account brute force from one source.
	// Override with: RATELIMIT_LOGIN_REQUESTS, RATELIMIT_LOGIN_WINDOW_SEC
	LoginLimit = RateLimitConfig{
		Name:              "login",
		Limit:             5,
		Window:            15 * time.Minute,
		CountFailuresOnly: true,
	}
)

func init() {
	StandardLimit = ParseRateLimitFromEnv("STANDARD", StandardLimit)
	SensitiveLimit = ParseRateLimitFromEnv("SENSITIVE", SensitiveLimit)
	LoginLimit = ParseRateLimitFromEnv("LOGIN", LoginLimit)
}

// ParseRateLimitFromEnv reads limiter overrides from environment
// variables following the pattern RATELIMIT_{prefix}_{field}.
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.Limit = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	return config
}

// CounterStore is the fixed-window counter backend. The in-process
// implementation is the default; the Redis one makes the window
// cluster-wide.
type CounterStore interface {
	// Incr bumps the counter for key, starting a new window if the
	// previous one has lapsed, and returns the post-increment count and
	// the moment the window resets.
	Incr(ctx context.Context, key string, window time.Duration) (count int, reset time.Time, err error)

	// Decr refunds one increment within the current window. Used by
	// CountFailuresOnly to un-count successful requests.
	Decr(ctx context.Context, key string) error
}

// KeyExtractor derives the limiter key from a request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP, honoring X-Forwarded-For and
// X-Real-IP for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserIDKeyExtractor keys by the authenticated user, falling back to
// empty when the request is anonymous.
func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// UserOrIPKeyExtractor keys by user when authenticated, else by IP.
func UserOrIPKeyExtractor(r *http.Request) string {
	if uid := UserIDKeyExtractor(r); uid != "" {
		return "user:" + uid
	}
	return "ip:" + IPKeyExtractor(r)
}

// PrefixedKeyExtractor namespaces another extractor's keys, e.g.
// PrefixedKeyExtractor("auth", IPKeyExtractor) yields "auth:1.2.3.4".
func PrefixedKeyExtractor(prefix string, inner KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		key := inner(r)
		if key == "" {
			return ""
		}
		return prefix + ":" + key
	}
}

// MemoryCounterStore is the process-local CounterStore.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type windowCounter struct {
	count int
	reset time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*windowCounter)}
}

func (s *MemoryCounterStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemoryCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !now.Before(c.reset) {
		c = &windowCounter{reset: now.Add(window)}
		s.counters[key] = c

		// Opportunistic sweep so abandoned keys do not pile up.
		if len(s.counters) > 1024 {
			for k, v := range s.counters {
				if !now.Before(v.reset) {
					delete(s.counters, k)
				}
			}
		}
	}
	c.count++
	return c.count, c.reset, nil
}

func (s *MemoryCounterStore) Decr(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[key]; ok && c.count > 0 {
		c.count--
	}
	return nil
}

// RateLimitMiddleware enforces cfg against the given counter store. The
// three X-RateLimit-* headers are emitted on every response, rejected or
// not; rejections carry Retry-After for the window remainder. A counter
// store failure fails open: limiting is protection, not correctness.
func RateLimitMiddleware(cfg RateLimitConfig, counters CounterStore, key KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			k := key(r)
			if k == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			count, reset, err := counters.Incr(ctx, k, cfg.Window)
			if err != nil {
				log.Warn("rate limit: counter store failed, allowing request", "err", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := cfg.Limit - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if count > cfg.Limit {
				if cfg.OnReject != nil {
					cfg.OnReject()
				}
				log.Warn("rate limit exceeded",
					"limiter", cfg.Name,
					"key", k,
					"endpoint", r.URL.Path,
				)
				apperr.WriteError(w, apperr.RateLimited(reset.Sub(cfg.now())))
				return
			}

			if !cfg.CountFailuresOnly {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)

			// Successful requests do not burn budget in this mode. The
			// refund is skipped once the counted window has lapsed, so a
			// slow request cannot drain the successor window's counter.
			if sw.code < http.StatusBadRequest && cfg.now().Before(reset) {
				if err := counters.Decr(ctx, k); err != nil {
					log.Warn("rate limit: refund failed", "err", err)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
