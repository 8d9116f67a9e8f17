package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, password_hash, disabled, tokens_revoked_at, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u         domain.User
		disabled  int
		revokedAt sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &disabled, &revokedAt, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Disabled = disabled != 0
	u.TokensRevokedAt = fromMsecPtr(revokedAt)
	u.CreatedAt = fromMsec(createdAt)
	u.UpdatedAt = fromMsec(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, disabled, tokens_revoked_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, boolToInt(u.Disabled),
		msecPtr(u.TokensRevokedAt), msec(u.CreatedAt), msec(u.UpdatedAt))
	return mapConflict(err)
}

func (r *usersRepo) SetUserDisabled(ctx context.Context, userID string, disabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET disabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(disabled), msec(time.Now()), userID)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (r *usersRepo) SetTokensRevokedAt(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET tokens_revoked_at = ?, updated_at = ? WHERE id = ?`,
		msec(at), msec(time.Now()), userID)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
