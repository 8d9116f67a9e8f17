package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestSQLiteStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Constructed from UnixMilli so equality against the stored value is
	// exact (no monotonic reading, millisecond precision).
	now := time.UnixMilli(time.Now().UnixMilli()).UTC()

	u := domain.User{
		ID:           "u1",
		Email:        "alice@example.com",
		PasswordHash: "argon2id$stub",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.Users().CreateUser(ctx, u))

	t.Run("duplicate email conflicts", func(t *testing.T) {
		dup := u
		dup.ID = "u2"
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("round trip preserves fields", func(t *testing.T) {
		got, err := s.Users().GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		require.Equal(t, u.PasswordHash, got.PasswordHash)
		require.False(t, got.Disabled)
		require.Nil(t, got.TokensRevokedAt)
		require.Equal(t, now, got.CreatedAt)
	})

	t.Run("missing user is ErrNotFound", func(t *testing.T) {
		_, err := s.Users().GetUserByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("revocation cutoff persists", func(t *testing.T) {
		cutoff := now.Add(time.Minute)
		require.NoError(t, s.Users().SetTokensRevokedAt(ctx, "u1", cutoff))

		got, err := s.Users().GetUserByID(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got.TokensRevokedAt)
		require.Equal(t, cutoff, *got.TokensRevokedAt)
	})
}

func TestSQLiteStore_RolesAndPermissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	perm := domain.Permission{
		ID: "p1", Name: "widgets:read", Resource: "widgets",
		Action: domain.ActionRead, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.Permissions().CreatePermission(ctx, perm))

	t.Run("duplicate resource action conflicts", func(t *testing.T) {
		dup := perm
		dup.ID = "p2"
		dup.Name = "other name"
		require.ErrorIs(t, s.Permissions().CreatePermission(ctx, dup), store.ErrAlreadyExists)
	})

	role := domain.Role{
		ID: "r1", Name: "viewers", PermissionIDs: []string{"p1"},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.Roles().CreateRole(ctx, role))

	t.Run("role carries its permission ids", func(t *testing.T) {
		got, err := s.Roles().GetRoleByID(ctx, "r1")
		require.NoError(t, err)
		require.Equal(t, []string{"p1"}, got.PermissionIDs)
	})

	t.Run("deleting a role leaves the assignment dangling", func(t *testing.T) {
		require.NoError(t, s.RoleAssignments().SetRoleAssignment(ctx, domain.RoleAssignment{
			UserID: "u1", RoleIDs: []string{"r1"}, UpdatedAt: now,
		}))
		require.NoError(t, s.Roles().DeleteRole(ctx, "r1"))

		a, err := s.RoleAssignments().GetRoleAssignment(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, []string{"r1"}, a.RoleIDs)

		_, err = s.Roles().GetRoleByID(ctx, "r1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("batch lookup omits missing ids", func(t *testing.T) {
		perms, err := s.Permissions().GetPermissionsByIDs(ctx, []string{"p1", "ghost"})
		require.NoError(t, err)
		require.Len(t, perms, 1)
		require.Equal(t, "p1", perms[0].ID)
	})
}

func TestSQLiteStore_RefreshTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mk := func(id, hash string, lastUsed time.Time) domain.RefreshToken {
		return domain.RefreshToken{
			ID: id, TokenHash: hash, UserID: "u1",
			IssuedAt: now, ExpiresAt: now.Add(time.Hour), LastUsedAt: lastUsed,
			OriginIP: "203.0.113.1", UserAgent: "test",
		}
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, mk("t1", "h1", now)))
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, mk("t2", "h2", now.Add(time.Minute))))

	t.Run("most recent delete picks newest last_used_at", func(t *testing.T) {
		require.NoError(t, s.RefreshTokens().DeleteMostRecentUserRefreshToken(ctx, "u1"))

		_, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "h2")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "h1")
		require.NoError(t, err)
	})

	t.Run("delete missing respects errIfNotFound", func(t *testing.T) {
		require.ErrorIs(t, s.RefreshTokens().DeleteRefreshToken(ctx, "ghost", true), store.ErrNotFound)
		require.NoError(t, s.RefreshTokens().DeleteRefreshToken(ctx, "ghost", false))
	})

	t.Run("expired sweep is scoped", func(t *testing.T) {
		expired := mk("t3", "h3", now)
		expired.ExpiresAt = now.Add(-time.Minute)
		require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, expired))

		require.NoError(t, s.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now))

		_, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "h3")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "h1")
		require.NoError(t, err)
	})
}

func TestSQLiteStore_Throttles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := domain.ThrottleRecord{Key: "k1", Count: 3, LastAttemptAt: now}
	require.NoError(t, s.LoginThrottles().PutThrottle(ctx, rec))

	t.Run("put is an upsert", func(t *testing.T) {
		rec.Count = 4
		require.NoError(t, s.LoginThrottles().PutThrottle(ctx, rec))

		got, err := s.LoginThrottles().GetThrottle(ctx, "k1")
		require.NoError(t, err)
		require.Equal(t, 4, got.Count)
	})

	t.Run("stale sweep deletes old counters only", func(t *testing.T) {
		old := domain.ThrottleRecord{Key: "k2", Count: 9, LastAttemptAt: now.Add(-2 * time.Hour)}
		require.NoError(t, s.LoginThrottles().PutThrottle(ctx, old))

		require.NoError(t, s.LoginThrottles().DeleteStaleThrottles(ctx, now.Add(-time.Hour)))

		_, err := s.LoginThrottles().GetThrottle(ctx, "k2")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.LoginThrottles().GetThrottle(ctx, "k1")
		require.NoError(t, err)
	})
}

func TestSQLiteStore_WithTx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("rollback discards writes", func(t *testing.T) {
		sentinel := store.ErrContention
		err := s.WithTx(ctx, func(tx store.Tx) error {
			require.NoError(t, tx.Users().CreateUser(ctx, domain.User{
				ID: "ghost", Email: "ghost@example.com", PasswordHash: "x",
				CreatedAt: now, UpdatedAt: now,
			}))
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		_, err = s.Users().GetUserByID(ctx, "ghost")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("commit publishes writes", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.Users().CreateUser(ctx, domain.User{
				ID: "real", Email: "real@example.com", PasswordHash: "x",
				CreatedAt: now, UpdatedAt: now,
			})
		})
		require.NoError(t, err)

		_, err = s.Users().GetUserByID(ctx, "real")
		require.NoError(t, err)
	})
}
