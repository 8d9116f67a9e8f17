package domain

import "time"

// Role names a set of permissions. Role names are unique across the
// system; the permission set is mutated only through the resolver's
// transactional admin operations.
type Role struct {
	ID            string
	Name          string
	Description   string
	PermissionIDs []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RoleAssignment maps one user to the roles it holds. There is at most one
// assignment per user, overwritten wholesale; a missing assignment means
// zero roles, not an error.
type RoleAssignment struct {
	UserID    string
	RoleIDs   []string
	UpdatedAt time.Time
}
