package sqlite

import (
	"context"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
)

type assignmentsRepo struct {
	db dbtx
}

func (r *assignmentsRepo) GetRoleAssignment(ctx context.Context, userID string) (domain.RoleAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role_id, updated_at FROM user_roles WHERE user_id = ? ORDER BY role_id`, userID)
	if err != nil {
		return domain.RoleAssignment{}, err
	}
	defer rows.Close()

	a := domain.RoleAssignment{UserID: userID}
	var latest int64
	for rows.Next() {
		var (
			roleID    string
			updatedAt int64
		)
		if err := rows.Scan(&roleID, &updatedAt); err != nil {
			return domain.RoleAssignment{}, err
		}
		a.RoleIDs = append(a.RoleIDs, roleID)
		if updatedAt > latest {
			latest = updatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return domain.RoleAssignment{}, err
	}
	if len(a.RoleIDs) == 0 {
		return domain.RoleAssignment{}, store.ErrNotFound
	}
	a.UpdatedAt = fromMsec(latest)
	return a, nil
}

// SetRoleAssignment replaces the user's role set wholesale. Run inside a
// transaction; partial failure would otherwise drop roles.
func (r *assignmentsRepo) SetRoleAssignment(ctx context.Context, a domain.RoleAssignment) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = ?`, a.UserID); err != nil {
		return err
	}
	for _, roleID := range a.RoleIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_roles (user_id, role_id, updated_at) VALUES (?, ?, ?)`,
			a.UserID, roleID, msec(a.UpdatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func (r *assignmentsRepo) DeleteRoleAssignment(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, userID)
	return err
}
