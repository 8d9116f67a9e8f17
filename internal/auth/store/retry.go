package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	// retryAttempts bounds the retry loop; kept small and explicit so
	// the attempt cap stays auditable.
	retryAttempts = 3

	retryBaseBackoff = 50 * time.Millisecond
)

// Retryable reports whether err is a contention-class failure worth
// retrying: an explicit ErrContention from a driver, or the sqlite
// busy/locked conditions that surface as plain errors from database/sql.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContention) {
		return true
	}

	// modernc.org/sqlite reports SQLITE_BUSY / SQLITE_LOCKED through the
	// error string; there is no exported sentinel to match on.
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// WithRetry executes fn in a transaction, retrying contention-class
// failures with jittered exponential backoff. Non-retryable errors
// propagate immediately; the attempt cap is fixed so a wedged store cannot
// spin forever.
func WithRetry(ctx context.Context, s Store, fn func(tx Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBaseBackoff << (attempt - 1)
			jitter := time.Duration(rand.Int64N(int64(backoff)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = s.WithTx(ctx, fn)
		if lastErr == nil || !Retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
