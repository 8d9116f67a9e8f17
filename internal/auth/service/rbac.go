package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/idx"
)

// RBACService resolves effective permission sets and owns the role and
// permission admin surface.
type RBACService struct {
	Store store.Store

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *RBACService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// LoadPermissions resolves the user's effective permission set: the union
// of the permissions of every role assigned to the user, deduplicated.
//
// Absence at every level degrades to "fewer permissions", never an error:
// no assignment means an empty set, a deleted role or permission is
// silently skipped. Only storage failures surface, and the caller must
// treat those as a hard stop, not as an empty set.
func (s *RBACService) LoadPermissions(ctx context.Context, userID string) (domain.Permissions, error) {
	assignment, err := s.Store.RoleAssignments().GetRoleAssignment(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Permissions{}, nil
		}
		return nil, apperr.Database("load role assignment", err)
	}

	var permissionIDs []string
	for _, roleID := range assignment.RoleIDs {
		role, err := s.Store.Roles().GetRoleByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // role deleted since assignment
			}
			return nil, apperr.Database("load role", err)
		}
		for _, pid := range role.PermissionIDs {
			if !slices.Contains(permissionIDs, pid) {
				permissionIDs = append(permissionIDs, pid)
			}
		}
	}

	perms, err := s.Store.Permissions().GetPermissionsByIDs(ctx, permissionIDs)
	if err != nil {
		return nil, apperr.Database("load permissions", err)
	}
	return domain.Permissions(perms), nil
}

func (s *RBACService) GetRole(ctx context.Context, roleID string) (domain.Role, error) {
	role, err := s.Store.Roles().GetRoleByID(ctx, roleID)
	if err != nil {
		return domain.Role{}, mapStoreErr("get role", err)
	}
	return role, nil
}

func (s *RBACService) ListRoles(ctx context.Context, limit, offset int) ([]domain.Role, error) {
	roles, err := s.Store.Roles().ListRoles(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Database("list roles", err)
	}
	return roles, nil
}

func (s *RBACService) CreateRole(ctx context.Context, name, description string, permissionIDs []string) (domain.Role, error) {
	now := s.now().UTC()
	role := domain.Role{
		ID:          idx.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := store.WithRetry(ctx, s.Store, func(tx store.Tx) error {
		valid, err := existingPermissionIDs(ctx, tx, permissionIDs)
		if err != nil {
			return err
		}
		role.PermissionIDs = valid
		return tx.Roles().CreateRole(ctx, role)
	})
	if err != nil {
		return domain.Role{}, mapStoreErr("create role", err)
	}
	return role, nil
}

func (s *RBACService) UpdateRole(ctx context.Context, roleID, name, description string) (domain.Role, error) {
	err := store.WithRetry(ctx, s.Store, func(tx store.Tx) error {
		return tx.Roles().UpdateRole(ctx, roleID, name, description)
	})
	if err != nil {
		return domain.Role{}, mapStoreErr("update role", err)
	}
	return s.GetRole(ctx, roleID)
}

func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	err := store.WithRetry(ctx, s.Store, func(tx store.Tx) error {
		return tx.Roles().DeleteRole(ctx, roleID)
	})
	if err != nil {
		return mapStoreErr("delete role", err)
	}
	return nil
}

// AddPermissionsToRole unions the given permission IDs into the role's
// set. Read-modify-write inside a retried transaction; two concurrent
// adds both land.
func (s *RBACService) AddPermissionsToRole(ctx context.Context, roleID string, permissionIDs []string) (domain.Role, error) {
	var updated domain.Role
	err := store.WithRetry(ctx, s.Store, func(tx store.Tx) error {
		role, err := tx.Roles().GetRoleByID(ctx, roleID)
		if err != nil {
			return err
		}
		valid, err := existingPermissionIDs(ctx, tx, permissionIDs)
		if err != nil {
			return err
		}

		merged := slices.Clone(role.PermissionIDs)
		for _, pid := range valid {
			if !slices.Contains(merged, pid) {
				merged = append(merged, pid)
			}
		}
		if err := tx.Roles().SetRolePermissionIDs(ctx, roleID, merged); err != nil {
			return err
		}
		updated, err = tx.Roles().GetRoleByID(ctx, roleID)
		return err
	})
	if err != nil {
		return domain.Role{}, mapStoreErr("add role permissions", err)
	}
	return updated, nil
}

// RemovePermissionsFromRole subtracts the given permission IDs from the
// role's set. IDs not present are ignored.
func (s *RBACService) RemovePermissionsFromRole(ctx context.Context, roleID string, permissionIDs []string) (domain.Role, error) {
	var updated domain.Role
	err := store.WithRetry(ctx, s.Store, func(tx store.Tx) error {
		role, err := tx.Roles().GetRoleByID(ctx, roleID)
		if err != nil {
			return err
		}

		remaining := make([]string, 0, len(role.PermissionIDs))
		for _, pid := range role.PermissionIDs {
			if !slices.Contains(permissionIDs, pid) {
				remaining = append(remaining, pid)
			}
		}
		if err := tx.Roles().SetRolePermissionIDs(ctx, roleID, remaining); err != nil {
			return err
		}
		updated, err = tx.Roles().GetRoleByID(ctx, roleID)
		return err
	})
	if err != nil {
		return domain.Role{}, mapStoreErr("remove role permissions", err)
	}
	return updated, nil
}

func (s *RBACService) GetPermission(ctx context.Context, permissionID string) (domain.Permission, error) {
	p, err := s.Store.Permissions().GetPermissionByID(ctx, permissionID)
	if err != nil {
		return domain.Permission{}, mapStoreErr("get permission", err)
	}
	return p, nil
}

func (s *RBACService) ListPermissions(ctx context.Context, limit, offset int) ([]domain.Permission, error) {
	perms, err := s.Store.Permissions().ListPermissions(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Database("list permissions", err)
	}
	return perms, nil
}

func (s *RBACService) CreatePermission(
	ctx context.Context,
	name, description, resource string,
	action domain.Action,
) (domain.Permission, error) {
	now := s.now().UTC()
	p := domain.Permission{
		ID:          idx.New().String(),
		Name:        name,
		Description: description,
		Resource:    resource,
		Action:      action,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.Permissions().CreatePermission(ctx, p); err != nil {
		return domain.Permission{}, mapStoreErr("create permission", err)
	}
	return p, nil
}

func (s *RBACService) UpdatePermission(ctx context.Context, permissionID, name, description string) (domain.Permission, error) {
	err := store.WithRetry(ctx, s.Store, func(tx store.Tx) error {
		return tx.Permissions().UpdatePermission(ctx, permissionID, name, description)
	})
	if err != nil {
		return domain.Permission{}, mapStoreErr("update permission", err)
	}
	return s.GetPermission(ctx, permissionID)
}

func (s *RBACService) DeletePermission(ctx context.Context, permissionID string) error {
	err := store.WithRetry(ctx, s.Store, func(tx store.Tx) error {
		return tx.Permissions().DeletePermission(ctx, permissionID)
	})
	if err != nil {
		return mapStoreErr("delete permission", err)
	}
	return nil
}

// AssignRoles overwrites the user's role set wholesale. Unknown role IDs
// are rejected up front rather than silently stored.
func (s *RBACService) AssignRoles(ctx context.Context, userID string, roleIDs []string) (domain.RoleAssignment, error) {
	assignment := domain.RoleAssignment{
		UserID:    userID,
		RoleIDs:   roleIDs,
		UpdatedAt: s.now().UTC(),
	}

	err := store.WithRetry(ctx, s.Store, func(tx store.Tx) error {
		for _, roleID := range roleIDs {
			if _, err := tx.Roles().GetRoleByID(ctx, roleID); err != nil {
				return err
			}
		}
		return tx.RoleAssignments().SetRoleAssignment(ctx, assignment)
	})
	if err != nil {
		return domain.RoleAssignment{}, mapStoreErr("assign roles", err)
	}
	return assignment, nil
}

// existingPermissionIDs filters the requested IDs down to ones that exist,
// erroring when any are unknown so admin mistakes surface immediately.
func existingPermissionIDs(ctx context.Context, tx store.Tx, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	perms, err := tx.Permissions().GetPermissionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := make([]string, 0, len(perms))
	for _, p := range perms {
		found = append(found, p.ID)
	}
	for _, id := range ids {
		if !slices.Contains(found, id) {
			return nil, store.ErrNotFound
		}
	}
	return found, nil
}

// mapStoreErr translates store sentinels to the shared taxonomy; anything
// else is a database failure.
func mapStoreErr(op string, err error) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.E(apperr.KindNotFound, apperr.CodeNotFound, op+": not found")
	case errors.Is(err, store.ErrAlreadyExists):
		return apperr.E(apperr.KindConflict, apperr.CodeConflict, op+": already exists")
	default:
		return apperr.Database(op, err)
	}
}
