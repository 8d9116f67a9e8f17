package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
)

type permissionsRepo struct {
	db dbtx
}

const permissionColumns = `id, name, description, resource, action, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (domain.Permission, error) {
	var (
		p         domain.Permission
		action    string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &action, &createdAt, &updatedAt)
	if err != nil {
		return domain.Permission{}, mapNotFound(err)
	}
	p.Action = domain.Action(action)
	p.CreatedAt = fromMsec(createdAt)
	p.UpdatedAt = fromMsec(updatedAt)
	return p, nil
}

func (r *permissionsRepo) GetPermissionByID(ctx context.Context, id string) (domain.Permission, error) {
	return scanPermission(r.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE id = ?`, id))
}

func (r *permissionsRepo) GetPermissionByResourceAction(
	ctx context.Context,
	resource string,
	action domain.Action,
) (domain.Permission, error) {
	return scanPermission(r.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE resource = ? AND action = ?`,
		resource, string(action)))
}

func (r *permissionsRepo) GetPermissionsByIDs(ctx context.Context, ids []string) ([]domain.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []domain.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *permissionsRepo) ListPermissions(ctx context.Context, limit, offset int) ([]domain.Permission, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions
		 ORDER BY resource, action LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []domain.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *permissionsRepo) CreatePermission(ctx context.Context, p domain.Permission) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (id, name, description, resource, action, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Resource, string(p.Action),
		msec(p.CreatedAt), msec(p.UpdatedAt))
	return mapConflict(err)
}

func (r *permissionsRepo) UpdatePermission(ctx context.Context, permissionID, name, description string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE permissions SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		name, description, msec(time.Now()), permissionID)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (r *permissionsRepo) DeletePermission(ctx context.Context, permissionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = ?`, permissionID)
	if err != nil {
		return err
	}
	if err := errIfNoRows(res); err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE permission_id = ?`, permissionID)
	return err
}
