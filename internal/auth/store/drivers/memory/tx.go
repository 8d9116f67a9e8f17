package memory

import (
	"context"
	"database/sql"

	"github.com/tidewater/gatehouse/internal/auth/store"
)

// txStore is a transaction over a private clone of the dataset. Commit
// swaps the clone in wholesale, but only if the parent has not advanced
// since the snapshot was taken; a conflicting commit returns
// store.ErrContention so WithRetry re-runs the closure against fresh
// state instead of silently losing the other transaction's writes.
type txStore struct {
	parent *Store
	data   *dataset
	gen    uint64 // parent generation at snapshot time
	done   bool
}

func (t *txStore) view(fn func(d *dataset) error) error   { return fn(t.data) }
func (t *txStore) update(fn func(d *dataset) error) error { return fn(t.data) }

func (t *txStore) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true

	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	if t.parent.gen != t.gen {
		return store.ErrContention
	}
	t.parent.data = t.data
	t.parent.gen++
	return nil
}

func (t *txStore) Rollback() error {
	if t.done {
		return nil // rollback after commit is a no-op, matching the sqlite driver
	}
	t.done = true
	return nil
}

func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                     { return &usersRepo{s: t} }
func (t *txStore) Roles() store.Roles                     { return &rolesRepo{s: t} }
func (t *txStore) Permissions() store.Permissions         { return &permissionsRepo{s: t} }
func (t *txStore) RoleAssignments() store.RoleAssignments { return &assignmentsRepo{s: t} }
func (t *txStore) RefreshTokens() store.RefreshTokens     { return &refreshTokensRepo{s: t} }
func (t *txStore) LoginThrottles() store.LoginThrottles   { return &throttlesRepo{s: t} }
