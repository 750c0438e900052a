// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flightscheduly/backend/internal/auth"
	"github.com/flightscheduly/backend/internal/config"
	"github.com/flightscheduly/backend/internal/core"
)

// Service is the credential store behind the auth orchestrator. It owns
// password hashes, lockout counters and role assignments.
type Service struct {
	repo    Repository
	policy  *PasswordPolicy
	lockout config.LockoutConfig
	now     func() time.Time
}

var _ auth.CredentialStore = (*Service)(nil)

func NewService(
	repo Repository,
	policy *PasswordPolicy,
	lockout config.LockoutConfig,
) *Service {
	return &Service{
		repo:    repo,
		policy:  policy,
		lockout: lockout,
		now:     time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) FindByEmail(
	ctx context.Context,
	email string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}

	return user.toInfo(), nil
}

func (s *Service) FindByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return user.toInfo(), nil
}

func (s *Service) Create(
	ctx context.Context,
	profile auth.NewUser,
	password string,
) (*auth.UserInfo, error) {
	email := normalizeEmail(profile.Email)

	if problems := s.policy.Validate(
		password, email, profile.FirstName, profile.LastName,
	); len(problems) > 0 {
		return nil, auth.IdentityErrors(problems)
	}

	hash, err := core.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	stamp, err := core.GenerateSecureToken(core.RefreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate security stamp: %w", err)
	}

	user := &User{
		ID:             uuid.New().String(),
		Email:          email,
		PasswordHash:   hash,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		UserType:       int(profile.UserType),
		IsActive:       true,
		SecurityStamp:  stamp,
		LockoutEnabled: s.lockout.Enabled,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, auth.IdentityErrors{
				fmt.Sprintf("Email '%s' is already taken.", email),
			}
		}
		return nil, err
	}

	return user.toInfo(), nil
}

func (s *Service) UpdateProfile(
	ctx context.Context,
	userID, firstName, lastName string,
) error {
	return s.repo.UpdateProfile(ctx, userID, firstName, lastName)
}

func (s *Service) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	return s.repo.RecordLogin(ctx, userID, at)
}

func (s *Service) SetSecurityStamp(
	ctx context.Context,
	userID, stamp string,
	expiresAt *time.Time,
) error {
	return s.repo.SetSecurityStamp(ctx, userID, stamp, expiresAt)
}

func (s *Service) SwapSecurityStamp(
	ctx context.Context,
	userID, current, next string,
	expiresAt *time.Time,
) (bool, error) {
	return s.repo.SwapSecurityStamp(ctx, userID, current, next, expiresAt)
}

// VerifyPassword checks password and maintains the lockout counter. A
// locked account reports PasswordLockedOut without looking at the password.
func (s *Service) VerifyPassword(
	ctx context.Context,
	info *auth.UserInfo,
	password string,
) (auth.PasswordResult, error) {
	user, err := s.repo.GetByID(ctx, info.ID)
	if err != nil {
		return auth.PasswordFailed, err
	}

	now := s.now().UTC()
	lockoutActive := s.lockout.Enabled && user.LockoutEnabled

	if lockoutActive && user.IsLockedOut(now) {
		return auth.PasswordLockedOut, nil
	}

	valid, newHash, err := core.VerifyPasswordWithRehash(password, user.PasswordHash)
	if err != nil {
		return auth.PasswordFailed, fmt.Errorf("verify password: %w", err)
	}

	if valid {
		if user.AccessFailedCount > 0 || user.LockoutEnd != nil {
			if err := s.repo.UpdateLockout(ctx, user.ID, 0, nil); err != nil {
				return auth.PasswordFailed, err
			}
		}
		if newHash != "" {
			if err := s.repo.UpdatePassword(ctx, user.ID, newHash); err != nil {
				slog.WarnContext(ctx, "password rehash failed",
					"user_id", user.ID,
					"error", err,
				)
			}
		}
		return auth.PasswordSucceeded, nil
	}

	if !lockoutActive {
		return auth.PasswordFailed, nil
	}

	failed := user.AccessFailedCount + 1
	if failed >= s.lockout.MaxFailedAttempts {
		end := now.Add(s.lockout.Duration)
		if err := s.repo.UpdateLockout(ctx, user.ID, 0, &end); err != nil {
			return auth.PasswordFailed, err
		}
		return auth.PasswordLockedOut, nil
	}

	if err := s.repo.UpdateLockout(ctx, user.ID, failed, user.LockoutEnd); err != nil {
		return auth.PasswordFailed, err
	}

	return auth.PasswordFailed, nil
}

func (s *Service) GetRoles(
	ctx context.Context,
	info *auth.UserInfo,
) ([]string, error) {
	roles, err := s.repo.GetRoleNames(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, nil
}

func (s *Service) AddRole(
	ctx context.Context,
	info *auth.UserInfo,
	roleName string,
) error {
	role, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return auth.IdentityErrors{
				fmt.Sprintf("Role %s does not exist.", roleName),
			}
		}
		return err
	}

	if err := s.repo.AddUserRole(ctx, info.ID, role.ID); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return auth.IdentityErrors{
				fmt.Sprintf("User already in role '%s'.", role.Name),
			}
		}
		return err
	}

	return nil
}

func (s *Service) RoleExists(ctx context.Context, roleName string) (bool, error) {
	_, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) ChangePassword(
	ctx context.Context,
	info *auth.UserInfo,
	currentPassword, newPassword string,
) error {
	user, err := s.repo.GetByID(ctx, info.ID)
	if err != nil {
		return err
	}

	valid, err := core.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return auth.IdentityErrors{"Incorrect password."}
	}

	if problems := s.policy.Validate(
		newPassword, user.Email, user.FirstName, user.LastName,
	); len(problems) > 0 {
		return auth.IdentityErrors(problems)
	}

	hash, err := core.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.repo.UpdatePassword(ctx, user.ID, hash)
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("set active: %w", core.ErrNotFound)
	}
	return s.repo.SetActive(ctx, id, active)
}

// Unlock clears the failure counter and any open lockout window.
func (s *Service) Unlock(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("unlock: %w", core.ErrNotFound)
	}
	return s.repo.UpdateLockout(ctx, id, 0, nil)
}

// EnsureAdministrator creates an active Administrator with the given
// credentials, or promotes the existing account with that email. The
// password is only used when the account is created.
func (s *Service) EnsureAdministrator(
	ctx context.Context,
	email, password string,
) (*auth.UserInfo, bool, error) {
	created := false

	info, err := s.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, core.ErrNotFound):
		info, err = s.Create(ctx, auth.NewUser{
			Email:     email,
			FirstName: "System",
			LastName:  "Administrator",
			UserType:  auth.UserTypeAdministrator,
		}, password)
		if err != nil {
			return nil, false, fmt.Errorf("create administrator: %w", err)
		}
		created = true
	case err != nil:
		return nil, false, err
	default:
		if info.UserType != auth.UserTypeAdministrator || !info.IsActive {
			err := s.repo.Promote(ctx, info.ID, int(auth.UserTypeAdministrator))
			if err != nil {
				return nil, false, fmt.Errorf("promote administrator: %w", err)
			}
			info.UserType = auth.UserTypeAdministrator
			info.IsActive = true
		}
	}

	roles, err := s.GetRoles(ctx, info)
	if err != nil {
		return nil, false, err
	}
	if !slices.Contains(roles, auth.RoleAdministrator) {
		if err := s.AddRole(ctx, info, auth.RoleAdministrator); err != nil {
			return nil, false, fmt.Errorf("assign administrator role: %w", err)
		}
	}

	return info, created, nil
}
