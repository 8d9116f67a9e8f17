package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
)

type usersRepo struct{ s session }

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.s.view(func(d *dataset) error {
		var ok bool
		if u, ok = d.users[id]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return u, err
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	err := r.s.view(func(d *dataset) error {
		for _, cand := range d.users {
			if cand.Email == email {
				u = cand
				return nil
			}
		}
		return store.ErrNotFound
	})
	return u, err
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	return r.s.update(func(d *dataset) error {
		if _, ok := d.users[u.ID]; ok {
			return store.ErrAlreadyExists
		}
		for _, cand := range d.users {
			if cand.Email == u.Email {
				return store.ErrAlreadyExists
			}
		}
		d.users[u.ID] = u
		return nil
	})
}

func (r *usersRepo) SetUserDisabled(ctx context.Context, userID string, disabled bool) error {
	return r.s.update(func(d *dataset) error {
		u, ok := d.users[userID]
		if !ok {
			return store.ErrNotFound
		}
		u.Disabled = disabled
		u.UpdatedAt = time.Now().UTC()
		d.users[userID] = u
		return nil
	})
}

func (r *usersRepo) SetTokensRevokedAt(ctx context.Context, userID string, at time.Time) error {
	return r.s.update(func(d *dataset) error {
		u, ok := d.users[userID]
		if !ok {
			return store.ErrNotFound
		}
		u.TokensRevokedAt = &at
		u.UpdatedAt = time.Now().UTC()
		d.users[userID] = u
		return nil
	})
}

type rolesRepo struct{ s session }

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	var role domain.Role
	err := r.s.view(func(d *dataset) error {
		var ok bool
		if role, ok = d.roles[id]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return role, err
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var role domain.Role
	err := r.s.view(func(d *dataset) error {
		for _, cand := range d.roles {
			if cand.Name == name {
				role = cand
				return nil
			}
		}
		return store.ErrNotFound
	})
	return role, err
}

func (r *rolesRepo) ListRoles(ctx context.Context, limit, offset int) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.s.view(func(d *dataset) error {
		for _, role := range d.roles {
			roles = append(roles, role)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return page(roles, limit, offset), nil
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	return r.s.update(func(d *dataset) error {
		if _, ok := d.roles[role.ID]; ok {
			return store.ErrAlreadyExists
		}
		for _, cand := range d.roles {
			if cand.Name == role.Name {
				return store.ErrAlreadyExists
			}
		}
		d.roles[role.ID] = role
		return nil
	})
}

func (r *rolesRepo) UpdateRole(ctx context.Context, roleID, name, description string) error {
	return r.s.update(func(d *dataset) error {
		role, ok := d.roles[roleID]
		if !ok {
			return store.ErrNotFound
		}
		for id, cand := range d.roles {
			if id != roleID && cand.Name == name {
				return store.ErrAlreadyExists
			}
		}
		role.Name = name
		role.Description = description
		role.UpdatedAt = time.Now().UTC()
		d.roles[roleID] = role
		return nil
	})
}

func (r *rolesRepo) SetRolePermissionIDs(ctx context.Context, roleID string, permissionIDs []string) error {
	return r.s.update(func(d *dataset) error {
		role, ok := d.roles[roleID]
		if !ok {
			return store.ErrNotFound
		}
		role.PermissionIDs = dedupe(permissionIDs)
		role.UpdatedAt = time.Now().UTC()
		d.roles[roleID] = role
		return nil
	})
}

func (r *rolesRepo) DeleteRole(ctx context.Context, roleID string) error {
	return r.s.update(func(d *dataset) error {
		if _, ok := d.roles[roleID]; !ok {
			return store.ErrNotFound
		}
		delete(d.roles, roleID)
		return nil
	})
}

type permissionsRepo struct{ s session }

func (r *permissionsRepo) GetPermissionByID(ctx context.Context, id string) (domain.Permission, error) {
	var p domain.Permission
	err := r.s.view(func(d *dataset) error {
		var ok bool
		if p, ok = d.permissions[id]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return p, err
}

func (r *permissionsRepo) GetPermissionByResourceAction(
	ctx context.Context,
	resource string,
	action domain.Action,
) (domain.Permission, error) {
	var p domain.Permission
	err := r.s.view(func(d *dataset) error {
		for _, cand := range d.permissions {
			if cand.Resource == resource && cand.Action == action {
				p = cand
				return nil
			}
		}
		return store.ErrNotFound
	})
	return p, err
}

func (r *permissionsRepo) GetPermissionsByIDs(ctx context.Context, ids []string) ([]domain.Permission, error) {
	var perms []domain.Permission
	err := r.s.view(func(d *dataset) error {
		for _, id := range ids {
			if p, ok := d.permissions[id]; ok {
				perms = append(perms, p)
			}
		}
		return nil
	})
	return perms, err
}

func (r *permissionsRepo) ListPermissions(ctx context.Context, limit, offset int) ([]domain.Permission, error) {
	var perms []domain.Permission
	err := r.s.view(func(d *dataset) error {
		for _, p := range d.permissions {
			perms = append(perms, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Resource != perms[j].Resource {
			return perms[i].Resource < perms[j].Resource
		}
		return perms[i].Action < perms[j].Action
	})
	return page(perms, limit, offset), nil
}

func (r *permissionsRepo) CreatePermission(ctx context.Context, p domain.Permission) error {
	return r.s.update(func(d *dataset) error {
		if _, ok := d.permissions[p.ID]; ok {
			return store.ErrAlreadyExists
		}
		for _, cand := range d.permissions {
			if cand.Resource == p.Resource && cand.Action == p.Action {
				return store.ErrAlreadyExists
			}
		}
		d.permissions[p.ID] = p
		return nil
	})
}

func (r *permissionsRepo) UpdatePermission(ctx context.Context, permissionID, name, description string) error {
	return r.s.update(func(d *dataset) error {
		p, ok := d.permissions[permissionID]
		if !ok {
			return store.ErrNotFound
		}
		p.Name = name
		p.Description = description
		p.UpdatedAt = time.Now().UTC()
		d.permissions[permissionID] = p
		return nil
	})
}

func (r *permissionsRepo) DeletePermission(ctx context.Context, permissionID string) error {
	return r.s.update(func(d *dataset) error {
		if _, ok := d.permissions[permissionID]; !ok {
			return store.ErrNotFound
		}
		delete(d.permissions, permissionID)
		return nil
	})
}

type assignmentsRepo struct{ s session }

func (r *assignmentsRepo) GetRoleAssignment(ctx context.Context, userID string) (domain.RoleAssignment, error) {
	var a domain.RoleAssignment
	err := r.s.view(func(d *dataset) error {
		var ok bool
		if a, ok = d.assignments[userID]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return a, err
}

func (r *assignmentsRepo) SetRoleAssignment(ctx context.Context, a domain.RoleAssignment) error {
	return r.s.update(func(d *dataset) error {
		a.RoleIDs = dedupe(a.RoleIDs)
		d.assignments[a.UserID] = a
		return nil
	})
}

func (r *assignmentsRepo) DeleteRoleAssignment(ctx context.Context, userID string) error {
	return r.s.update(func(d *dataset) error {
		delete(d.assignments, userID)
		return nil
	})
}

type refreshTokensRepo struct{ s session }

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	return r.s.update(func(d *dataset) error {
		if _, ok := d.tokens[t.TokenHash]; ok {
			return store.ErrAlreadyExists
		}
		d.tokens[t.TokenHash] = t
		return nil
	})
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.s.view(func(d *dataset) error {
		var ok bool
		if t, ok = d.tokens[hash]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return t, err
}

func (r *refreshTokensRepo) TouchRefreshToken(ctx context.Context, hash string, usedAt time.Time) error {
	return r.s.update(func(d *dataset) error {
		t, ok := d.tokens[hash]
		if !ok {
			return nil // touch of a deleted token is a no-op
		}
		t.LastUsedAt = usedAt
		d.tokens[hash] = t
		return nil
	})
}

func (r *refreshTokensRepo) DeleteRefreshToken(ctx context.Context, hash string, errIfNotFound bool) error {
	return r.s.update(func(d *dataset) error {
		if _, ok := d.tokens[hash]; !ok {
			if errIfNotFound {
				return store.ErrNotFound
			}
			return nil
		}
		delete(d.tokens, hash)
		return nil
	})
}

func (r *refreshTokensRepo) DeleteUserRefreshTokens(ctx context.Context, userID string) (int, error) {
	n := 0
	err := r.s.update(func(d *dataset) error {
		for hash, t := range d.tokens {
			if t.UserID == userID {
				delete(d.tokens, hash)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *refreshTokensRepo) DeleteMostRecentUserRefreshToken(ctx context.Context, userID string) error {
	return r.s.update(func(d *dataset) error {
		var (
			newestHash string
			newest     time.Time
			found      bool
		)
		for hash, t := range d.tokens {
			if t.UserID != userID {
				continue
			}
			if !found || t.LastUsedAt.After(newest) {
				newestHash, newest, found = hash, t.LastUsedAt, true
			}
		}
		if !found {
			return store.ErrNotFound
		}
		delete(d.tokens, newestHash)
		return nil
	})
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error {
	return r.s.update(func(d *dataset) error {
		for hash, t := range d.tokens {
			if t.Expired(now) {
				delete(d.tokens, hash)
			}
		}
		return nil
	})
}

type throttlesRepo struct{ s session }

func (r *throttlesRepo) GetThrottle(ctx context.Context, key string) (domain.ThrottleRecord, error) {
	var rec domain.ThrottleRecord
	err := r.s.view(func(d *dataset) error {
		var ok bool
		if rec, ok = d.throttles[key]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
	return rec, err
}

func (r *throttlesRepo) PutThrottle(ctx context.Context, rec domain.ThrottleRecord) error {
	return r.s.update(func(d *dataset) error {
		d.throttles[rec.Key] = rec
		return nil
	})
}

func (r *throttlesRepo) DeleteThrottle(ctx context.Context, key string) error {
	return r.s.update(func(d *dataset) error {
		delete(d.throttles, key)
		return nil
	})
}

func (r *throttlesRepo) DeleteStaleThrottles(ctx context.Context, before time.Time) error {
	return r.s.update(func(d *dataset) error {
		for key, rec := range d.throttles {
			if rec.LastAttemptAt.Before(before) {
				delete(d.throttles, key)
			}
		}
		return nil
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
