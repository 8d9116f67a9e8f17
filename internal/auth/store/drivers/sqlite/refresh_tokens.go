package sqlite

import (
	"context"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_refresh_tokens
		   (id, token_hash, user_id, issued_at, expires_at, last_used_at, origin_ip, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.UserID,
		msec(t.IssuedAt), msec(t.ExpiresAt), msec(t.LastUsedAt),
		t.OriginIP, t.UserAgent)
	return mapConflict(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		t          domain.RefreshToken
		issuedAt   int64
		expiresAt  int64
		lastUsedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token_hash, user_id, issued_at, expires_at, last_used_at, origin_ip, user_agent
		 FROM user_refresh_tokens WHERE token_hash = ?`, hash).
		Scan(&t.ID, &t.TokenHash, &t.UserID, &issuedAt, &expiresAt, &lastUsedAt, &t.OriginIP, &t.UserAgent)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.IssuedAt = fromMsec(issuedAt)
	t.ExpiresAt = fromMsec(expiresAt)
	t.LastUsedAt = fromMsec(lastUsedAt)
	return t, nil
}

func (r *refreshTokensRepo) TouchRefreshToken(ctx context.Context, hash string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_refresh_tokens SET last_used_at = ? WHERE token_hash = ?`,
		msec(usedAt), hash)
	return err
}

func (r *refreshTokensRepo) DeleteRefreshToken(ctx context.Context, hash string, errIfNotFound bool) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_refresh_tokens WHERE token_hash = ?`, hash)
	if err != nil {
		return err
	}
	if !errIfNotFound {
		return nil
	}
	return errIfNoRows(res)
}

func (r *refreshTokensRepo) DeleteUserRefreshTokens(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_refresh_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *refreshTokensRepo) DeleteMostRecentUserRefreshToken(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_refresh_tokens WHERE id = (
		   SELECT id FROM user_refresh_tokens
		   WHERE user_id = ?
		   ORDER BY last_used_at DESC, issued_at DESC
		   LIMIT 1
		 )`, userID)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_refresh_tokens WHERE expires_at < ?`, msec(now))
	return err
}
