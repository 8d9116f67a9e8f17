package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/cryptox"
	"github.com/tidewater/gatehouse/pkg/idx"
)

const minPasswordLength = 8

// UserService administers the accounts backing the local identity
// provider. Deployments fronting an external provider do not mount its
// routes.
type UserService struct {
	Store store.Store
	RBAC  *RBACService

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *UserService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// UserProfile is the admin/self view of an account: identity plus its
// roles and effective permissions.
type UserProfile struct {
	ID          string
	Email       string
	Disabled    bool
	CreatedAt   time.Time
	Roles       []domain.Role
	Permissions domain.Permissions
}

// CreateUser registers a local account with an argon2id-hashed password.
func (s *UserService) CreateUser(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, apperr.E(apperr.KindValidation, apperr.CodeValidation, "invalid email address")
	}
	if len(password) < minPasswordLength {
		return domain.User{}, apperr.E(apperr.KindValidation, apperr.CodeValidation, "password too short")
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, apperr.Internal("hash password", err)
	}

	now := s.now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		return domain.User{}, mapStoreErr("create user", err)
	}
	return u, nil
}

// GetProfile assembles the user view served by GET /v1/users/{id}.
func (s *UserService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return UserProfile{}, mapStoreErr("get user", err)
	}

	profile := UserProfile{
		ID:        u.ID,
		Email:     u.Email,
		Disabled:  u.Disabled,
		CreatedAt: u.CreatedAt,
	}

	assignment, err := s.Store.RoleAssignments().GetRoleAssignment(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return UserProfile{}, apperr.Database("load role assignment", err)
	}
	for _, roleID := range assignment.RoleIDs {
		role, err := s.Store.Roles().GetRoleByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return UserProfile{}, apperr.Database("load role", err)
		}
		profile.Roles = append(profile.Roles, role)
	}

	profile.Permissions, err = s.RBAC.LoadPermissions(ctx, userID)
	if err != nil {
		return UserProfile{}, err
	}
	return profile, nil
}

// SetDisabled flips the account's disabled flag.
func (s *UserService) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	if err := s.Store.Users().SetUserDisabled(ctx, userID, disabled); err != nil {
		return mapStoreErr("set user disabled", err)
	}
	return nil
}
