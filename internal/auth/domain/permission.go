package domain

import (
	"fmt"
	"time"
)

// Action is the verb a permission grants on its resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// ActionManage subsumes create/read/update/delete on its resource.
	ActionManage Action = "manage"
)

// ResourceWildcard paired with ActionManage grants everything (superuser).
const ResourceWildcard = "*"

// ParseAction validates a string as a known action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Permission grants an action on a resource. At most one permission exists
// per (resource, action) pair; resource and action are never mutated in
// place once a role references the permission.
type Permission struct {
	ID          string
	Name        string
	Description string
	Resource    string
	Action      Action
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permissions is a user's effective permission set.
type Permissions []Permission

// Allows reports whether the set authorizes action on resource. A single
// matching permission is sufficient; there is no deny concept. The three
// tiers, in any order:
//
//  1. exact (resource, action) match
//  2. same resource with the manage action
//  3. the global (*, manage) superuser permission
func (ps Permissions) Allows(resource string, action Action) bool {
	for _, p := range ps {
		if p.Resource == resource && p.Action == action {
			return true
		}
		if p.Resource == resource && p.Action == ActionManage {
			return true
		}
		if p.Resource == ResourceWildcard && p.Action == ActionManage {
			return true
		}
	}
	return false
}
