package sqlite

import (
	"context"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
)

type throttlesRepo struct {
	db dbtx
}

func (r *throttlesRepo) GetThrottle(ctx context.Context, key string) (domain.ThrottleRecord, error) {
	var (
		rec           domain.ThrottleRecord
		lastAttemptAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT key, count, last_attempt_at FROM login_throttling WHERE key = ?`, key).
		Scan(&rec.Key, &rec.Count, &lastAttemptAt)
	if err != nil {
		return domain.ThrottleRecord{}, mapNotFound(err)
	}
	rec.LastAttemptAt = fromMsec(lastAttemptAt)
	return rec, nil
}

func (r *throttlesRepo) PutThrottle(ctx context.Context, rec domain.ThrottleRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_throttling (key, count, last_attempt_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET count = excluded.count, last_attempt_at = excluded.last_attempt_at`,
		rec.Key, rec.Count, msec(rec.LastAttemptAt))
	return err
}

func (r *throttlesRepo) DeleteThrottle(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM login_throttling WHERE key = ?`, key)
	return err
}

func (r *throttlesRepo) DeleteStaleThrottles(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM login_throttling WHERE last_attempt_at < ?`, msec(before))
	return err
}
