package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermissions_Allows(t *testing.T) {
	perm := func(resource string, action Action) Permission {
		return Permission{Resource: resource, Action: action}
	}

	tests := []struct {
		name     string
		held     Permissions
		resource string
		action   Action
		want     bool
	}{
		{"empty set denies", nil, "roles", ActionRead, false},
		{"exact match", Permissions{perm("roles", ActionRead)}, "roles", ActionRead, true},
		{"different action denied", Permissions{perm("roles", ActionRead)}, "roles", ActionDelete, false},
		{"different resource denied", Permissions{perm("roles", ActionRead)}, "users", ActionRead, false},
		{"manage subsumes read", Permissions{perm("roles", ActionManage)}, "roles", ActionRead, true},
		{"manage subsumes delete", Permissions{perm("roles", ActionManage)}, "roles", ActionDelete, true},
		{"manage does not cross resources", Permissions{perm("roles", ActionManage)}, "users", ActionRead, false},
		{"wildcard manage grants everything", Permissions{perm(ResourceWildcard, ActionManage)}, "anything", ActionDelete, true},
		{"wildcard with non-manage action grants nothing", Permissions{perm(ResourceWildcard, ActionRead)}, "roles", ActionRead, false},
		{"read on wildcard resource is not superuser", Permissions{perm("roles", ActionRead)}, ResourceWildcard, ActionManage, false},
		{"one grant among many suffices", Permissions{perm("users", ActionRead), perm("roles", ActionManage)}, "roles", ActionUpdate, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.held.Allows(tt.resource, tt.action))
		})
	}
}

func TestParseAction(t *testing.T) {
	for _, valid := range []string{"create", "read", "update", "delete", "manage"} {
		a, err := ParseAction(valid)
		require.NoError(t, err)
		require.Equal(t, Action(valid), a)
	}

	_, err := ParseAction("administer")
	require.Error(t, err)

	_, err = ParseAction("")
	require.Error(t, err)
}
