package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
)

type rolesRepo struct {
	db dbtx
}

func (r *rolesRepo) getRole(ctx context.Context, query string, arg any) (domain.Role, error) {
	var (
		role      domain.Role
		createdAt int64
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&role.ID, &role.Name, &role.Description, &createdAt, &updatedAt)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	role.CreatedAt = fromMsec(createdAt)
	role.UpdatedAt = fromMsec(updatedAt)

	role.PermissionIDs, err = r.permissionIDs(ctx, role.ID)
	return role, err
}

func (r *rolesRepo) permissionIDs(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT permission_id FROM role_permissions WHERE role_id = ? ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	return r.getRole(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles WHERE id = ?`, id)
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	return r.getRole(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles WHERE name = ?`, name)
}

func (r *rolesRepo) ListRoles(ctx context.Context, limit, offset int) ([]domain.Role, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at
		 FROM roles ORDER BY name LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var (
			role      domain.Role
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		role.CreatedAt = fromMsec(createdAt)
		role.UpdatedAt = fromMsec(updatedAt)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		roles[i].PermissionIDs, err = r.permissionIDs(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return roles, nil
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		role.ID, role.Name, role.Description, msec(role.CreatedAt), msec(role.UpdatedAt))
	if err != nil {
		return mapConflict(err)
	}

	for _, pid := range role.PermissionIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)`,
			role.ID, pid); err != nil {
			return err
		}
	}
	return nil
}

func (r *rolesRepo) UpdateRole(ctx context.Context, roleID, name, description string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE roles SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		name, description, msec(time.Now()), roleID)
	if err != nil {
		return mapConflict(err)
	}
	return errIfNoRows(res)
}

func (r *rolesRepo) SetRolePermissionIDs(ctx context.Context, roleID string, permissionIDs []string) error {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM roles WHERE id = ?`, roleID).Scan(&exists)
	if err != nil {
		return mapNotFound(err)
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = ?`, roleID); err != nil {
		return err
	}
	for _, pid := range permissionIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)`,
			roleID, pid); err != nil {
			return err
		}
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE roles SET updated_at = ? WHERE id = ?`, msec(time.Now()), roleID)
	return err
}

func (r *rolesRepo) DeleteRole(ctx context.Context, roleID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, roleID)
	if err != nil {
		return err
	}
	if err := errIfNoRows(res); err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, roleID)
	return err
}

func errIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
