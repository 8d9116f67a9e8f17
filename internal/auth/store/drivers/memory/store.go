// Package memory implements store.Store entirely in process memory. It
// backs tests and ephemeral deployments where persistence across restarts
// does not matter.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
)

// dataset is the full state. Transactions clone it and swap the clone
// back in on commit, so readers never see a half-applied transaction.
type dataset struct {
	users       map[string]domain.User // keyed by ID
	roles       map[string]domain.Role
	permissions map[string]domain.Permission
	assignments map[string]domain.RoleAssignment // keyed by user ID
	tokens      map[string]domain.RefreshToken   // keyed by fingerprint
	throttles   map[string]domain.ThrottleRecord
}

func newDataset() *dataset {
	return &dataset{
		users:       make(map[string]domain.User),
		roles:       make(map[string]domain.Role),
		permissions: make(map[string]domain.Permission),
		assignments: make(map[string]domain.RoleAssignment),
		tokens:      make(map[string]domain.RefreshToken),
		throttles:   make(map[string]domain.ThrottleRecord),
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		users:       maps.Clone(d.users),
		roles:       make(map[string]domain.Role, len(d.roles)),
		permissions: maps.Clone(d.permissions),
		assignments: make(map[string]domain.RoleAssignment, len(d.assignments)),
		tokens:      maps.Clone(d.tokens),
		throttles:   maps.Clone(d.throttles),
	}
	// Roles and assignments carry slices; copy them so a transaction
	// cannot mutate the committed state through shared backing arrays.
	for id, r := range d.roles {
		r.PermissionIDs = append([]string(nil), r.PermissionIDs...)
		c.roles[id] = r
	}
	for id, a := range d.assignments {
		a.RoleIDs = append([]string(nil), a.RoleIDs...)
		c.assignments[id] = a
	}
	return c
}

// session abstracts "the state this repo operates on" so the same repo
// code serves both the root store (locked) and a transaction (private
// clone).
type session interface {
	view(fn func(d *dataset) error) error
	update(fn func(d *dataset) error) error
}

type Store struct {
	mu   sync.RWMutex
	data *dataset

	// gen is bumped on every committed mutation. Transactions capture it
	// at start and Commit fails with store.ErrContention when it has
	// moved, so interleaved read-modify-write transactions cannot erase
	// each other's writes; WithRetry re-runs the loser.
	gen uint64
}

func NewStore() *Store {
	return &Store{data: newDataset()}
}

func (s *Store) view(fn func(d *dataset) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) update(fn func(d *dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.data); err != nil {
		return err
	}
	s.gen++
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

// ApplyMigrations is a no-op; there is no schema to create.
func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	s.mu.RLock()
	clone := s.data.clone()
	gen := s.gen
	s.mu.RUnlock()
	return &txStore{parent: s, data: clone, gen: gen}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Users() store.Users                     { return &usersRepo{s: s} }
func (s *Store) Roles() store.Roles                     { return &rolesRepo{s: s} }
func (s *Store) Permissions() store.Permissions         { return &permissionsRepo{s: s} }
func (s *Store) RoleAssignments() store.RoleAssignments { return &assignmentsRepo{s: s} }
func (s *Store) RefreshTokens() store.RefreshTokens     { return &refreshTokensRepo{s: s} }
func (s *Store) LoginThrottles() store.LoginThrottles   { return &throttlesRepo{s: s} }
