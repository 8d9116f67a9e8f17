package store

import (
	"context"
	"errors"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrContention marks a transient transaction failure (aborted,
	// busy, deadline) that WithRetry treats as retryable.
	ErrContention = errors.New("store: transaction contention")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// memory) implement this. It exposes sub-repositories to keep concerns
// tidy and testable, and to stop callers from accidentally opening
// transactions inside transactions.
type Store interface {
	Users() Users
	Roles() Roles
	Permissions() Permissions
	RoleAssignments() RoleAssignments
	RefreshTokens() RefreshTokens
	LoginThrottles() LoginThrottles

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing store is still reachable.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during login.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	// Returns ErrAlreadyExists on a duplicate email.
	CreateUser(ctx context.Context, u domain.User) error

	// SetUserDisabled flips the disabled flag and bumps updated_at.
	SetUserDisabled(ctx context.Context, userID string, disabled bool) error

	// SetTokensRevokedAt stamps the access-token revocation cutoff.
	SetTokensRevokedAt(ctx context.Context, userID string, at time.Time) error
}

type Roles interface {
	// GetRoleByID fetches a role by its ID.
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)

	// GetRoleByName fetches a role by its unique name.
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListRoles returns roles ordered by name. limit <= 0 means all.
	ListRoles(ctx context.Context, limit, offset int) ([]domain.Role, error)

	// CreateRole inserts a new role. Returns ErrAlreadyExists on a
	// duplicate name.
	CreateRole(ctx context.Context, r domain.Role) error

	// UpdateRole modifies name and description only.
	UpdateRole(ctx context.Context, roleID, name, description string) error

	// SetRolePermissionIDs overwrites the role's permission set.
	SetRolePermissionIDs(ctx context.Context, roleID string, permissionIDs []string) error

	// DeleteRole removes a role. Holders keep the dangling role ID in
	// their assignment; the resolver skips it at read time.
	DeleteRole(ctx context.Context, roleID string) error
}

type Permissions interface {
	// GetPermissionByID fetches a permission by its ID.
	GetPermissionByID(ctx context.Context, id string) (domain.Permission, error)

	// GetPermissionByResourceAction fetches the unique permission for a
	// (resource, action) pair.
	GetPermissionByResourceAction(ctx context.Context, resource string, action domain.Action) (domain.Permission, error)

	// GetPermissionsByIDs resolves a batch of IDs. Missing IDs are
	// omitted from the result, not an error.
	GetPermissionsByIDs(ctx context.Context, ids []string) ([]domain.Permission, error)

	// ListPermissions returns permissions ordered by resource then
	// action. limit <= 0 means all.
	ListPermissions(ctx context.Context, limit, offset int) ([]domain.Permission, error)

	// CreatePermission inserts a new permission. Returns
	// ErrAlreadyExists when the (resource, action) pair is taken.
	CreatePermission(ctx context.Context, p domain.Permission) error

	// UpdatePermission modifies name and description only; resource and
	// action are immutable once created.
	UpdatePermission(ctx context.Context, permissionID, name, description string) error

	// DeletePermission removes a permission. Roles keep the dangling ID;
	// the resolver skips it at read time.
	DeletePermission(ctx context.Context, permissionID string) error
}

type RoleAssignments interface {
	// GetRoleAssignment returns the user's assignment, or ErrNotFound
	// when the user has never been assigned roles.
	GetRoleAssignment(ctx context.Context, userID string) (domain.RoleAssignment, error)

	// SetRoleAssignment creates or overwrites the assignment wholesale.
	SetRoleAssignment(ctx context.Context, a domain.RoleAssignment) error

	// DeleteRoleAssignment removes the assignment (the user drops to
	// zero roles).
	DeleteRoleAssignment(ctx context.Context, userID string) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the record by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// TouchRefreshToken updates last_used_at. Last-writer-wins under
	// concurrent refreshes of the same token.
	TouchRefreshToken(ctx context.Context, hash string, usedAt time.Time) error

	// DeleteRefreshToken removes the record by fingerprint. When
	// errIfNotFound is true (the default behavior in callers), a missing
	// record yields ErrNotFound; when false the delete is silently
	// idempotent.
	DeleteRefreshToken(ctx context.Context, hash string, errIfNotFound bool) error

	// DeleteUserRefreshTokens removes every record for a user in one
	// atomic batch and reports how many were deleted.
	DeleteUserRefreshTokens(ctx context.Context, userID string) (int, error)

	// DeleteMostRecentUserRefreshToken removes the record with the
	// newest last_used_at for the user.
	DeleteMostRecentUserRefreshToken(ctx context.Context, userID string) error

	// DeleteExpiredRefreshTokens is housekeeping; idempotent.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error
}

type LoginThrottles interface {
	// GetThrottle fetches the failure counter for a key.
	GetThrottle(ctx context.Context, key string) (domain.ThrottleRecord, error)

	// PutThrottle creates or overwrites the counter.
	PutThrottle(ctx context.Context, rec domain.ThrottleRecord) error

	// DeleteThrottle removes the counter; missing keys are not an error.
	DeleteThrottle(ctx context.Context, key string) error

	// DeleteStaleThrottles removes counters whose last attempt precedes
	// the cutoff; housekeeping, idempotent.
	DeleteStaleThrottles(ctx context.Context, before time.Time) error
}
