// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flightscheduly/backend/internal/config"
	"github.com/flightscheduly/backend/internal/core"
	"github.com/flightscheduly/backend/internal/middleware"
)

type TokenSigner interface {
	Issue(user *UserInfo, roles []string, issuedAt time.Time) (string, error)
	DecodeIgnoringExpiry(token string) (*middleware.AccessTokenClaims, error)
}

// Service is the auth orchestrator. A user holds exactly one refresh token
// at a time: it is stored as the security stamp and replaced on every login,
// refresh, revoke and password change.
type Service struct {
	store   CredentialStore
	signer  TokenSigner
	refresh RefreshTokenGenerator
	config  config.JWTConfig
	now     func() time.Time
}

func NewService(
	store CredentialStore,
	signer TokenSigner,
	refresh RefreshTokenGenerator,
	cfg config.JWTConfig,
) *Service {
	return &Service{
		store:   store,
		signer:  signer,
		refresh: refresh,
		config:  cfg,
		now:     time.Now,
	}
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
) (_ *UserView, err error) {
	ctx, span := core.StartSpan(ctx, "auth.Register")
	defer func() { core.EndSpan(span, err) }()

	user, err := s.store.Create(ctx, NewUser{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		UserType:  UserTypeStudent,
	}, req.Password)
	if err != nil {
		return nil, rejected("create user", ErrRegistrationFailed, err)
	}

	exists, err := s.store.RoleExists(ctx, RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("check student role: %w", err)
	}
	if exists {
		err := s.store.AddRole(ctx, user, RoleStudent)
		var identityErrs IdentityErrors
		if err != nil && !errors.As(err, &identityErrs) {
			return nil, fmt.Errorf("assign student role: %w", err)
		}
	}

	return s.view(ctx, user)
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
) (_ *AuthResult, err error) {
	ctx, span := core.StartSpan(ctx, "auth.Login")
	defer func() { core.EndSpan(span, err) }()

	user, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.SpendPasswordCheck(req.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !user.IsActive {
		core.SpendPasswordCheck(req.Password)
		return nil, ErrInvalidCredentials
	}

	result, err := s.store.VerifyPassword(ctx, user, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	switch result {
	case PasswordSucceeded:
	case PasswordLockedOut:
		return nil, ErrAccountLocked
	default:
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.store.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.LastLoginAt = &now

	return s.issueTokens(ctx, user, now, "")
}

// RefreshToken exchanges an access token, expired or not, plus the current
// refresh token for a new pair. The presented refresh token is consumed.
func (s *Service) RefreshToken(
	ctx context.Context,
	accessToken, refreshToken string,
) (_ *AuthResult, err error) {
	ctx, span := core.StartSpan(ctx, "auth.RefreshToken")
	defer func() { core.EndSpan(span, err) }()

	claims, err := s.signer.DecodeIgnoringExpiry(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	now := s.now().UTC()

	if !user.IsActive || !core.TokensEqual(refreshToken, user.SecurityStamp) {
		return nil, ErrInvalidRefreshToken
	}
	if user.RefreshTokenExpiresAt == nil || !now.Before(*user.RefreshTokenExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}

	return s.issueTokens(ctx, user, now, refreshToken)
}

// RevokeToken rotates the stamp so no outstanding refresh token can be
// redeemed. Access tokens already issued stay valid until they expire.
func (s *Service) RevokeToken(ctx context.Context, userID string) (err error) {
	ctx, span := core.StartSpan(ctx, "auth.RevokeToken",
		attribute.String("user.id", userID),
	)
	defer func() { core.EndSpan(span, err) }()

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	return s.rotateStamp(ctx, user)
}

func (s *Service) GetUserByID(
	ctx context.Context,
	userID string,
) (_ *UserView, err error) {
	ctx, span := core.StartSpan(ctx, "auth.GetUserByID",
		attribute.String("user.id", userID),
	)
	defer func() { core.EndSpan(span, err) }()

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.view(ctx, user)
}

// UpdateUser overwrites only the names that are non-empty in req.
func (s *Service) UpdateUser(
	ctx context.Context,
	userID string,
	req UpdateUserRequest,
) (_ *UserView, err error) {
	ctx, span := core.StartSpan(ctx, "auth.UpdateUser",
		attribute.String("user.id", userID),
	)
	defer func() { core.EndSpan(span, err) }()

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}

	if err := s.store.UpdateProfile(ctx, user.ID, user.FirstName, user.LastName); err != nil {
		return nil, rejected("update user", ErrOperationFailed, err)
	}

	return s.view(ctx, user)
}

// ChangePassword replaces the password and then ends the current session
// by rotating the stamp. A rejected change leaves the session alone.
func (s *Service) ChangePassword(
	ctx context.Context,
	userID string,
	req ChangePasswordRequest,
) (err error) {
	ctx, span := core.StartSpan(ctx, "auth.ChangePassword",
		attribute.String("user.id", userID),
	)
	defer func() { core.EndSpan(span, err) }()

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	err = s.store.ChangePassword(ctx, user, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return rejected("change password", ErrOperationFailed, err)
	}

	return s.rotateStamp(ctx, user)
}

func (s *Service) AssignRole(
	ctx context.Context,
	userID, roleName string,
) (err error) {
	ctx, span := core.StartSpan(ctx, "auth.AssignRole",
		attribute.String("user.id", userID),
		attribute.String("role", roleName),
	)
	defer func() { core.EndSpan(span, err) }()

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	exists, err := s.store.RoleExists(ctx, roleName)
	if err != nil {
		return fmt.Errorf("check role: %w", err)
	}
	if !exists {
		return ErrRoleNotFound
	}

	if err := s.store.AddRole(ctx, user, roleName); err != nil {
		return rejected("add role", ErrOperationFailed, err)
	}

	return nil
}

// issueTokens signs a new pair and stores the refresh token as the stamp.
// A non-empty consumed stamp is swapped out atomically, so of two requests
// presenting the same refresh token only one gets a new pair.
func (s *Service) issueTokens(
	ctx context.Context,
	user *UserInfo,
	now time.Time,
	consumed string,
) (*AuthResult, error) {
	roles, err := s.store.GetRoles(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("get roles: %w", err)
	}

	accessToken, err := s.signer.Issue(user, roles, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := s.refresh.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	refreshExpiresAt := now.Add(s.config.RefreshTokenTTL())

	if consumed == "" {
		err = s.store.SetSecurityStamp(ctx, user.ID, refreshToken, &refreshExpiresAt)
	} else {
		var swapped bool
		swapped, err = s.store.SwapSecurityStamp(
			ctx, user.ID, consumed, refreshToken, &refreshExpiresAt,
		)
		if err == nil && !swapped {
			return nil, ErrInvalidRefreshToken
		}
	}
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	user.SecurityStamp = refreshToken
	user.RefreshTokenExpiresAt = &refreshExpiresAt

	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.config.AccessTokenTTL()),
		User:         newUserView(user, roles),
	}, nil
}

func (s *Service) rotateStamp(ctx context.Context, user *UserInfo) error {
	stamp, err := s.refresh.Generate()
	if err != nil {
		return fmt.Errorf("generate security stamp: %w", err)
	}

	if err := s.store.SetSecurityStamp(ctx, user.ID, stamp, nil); err != nil {
		return fmt.Errorf("rotate security stamp: %w", err)
	}

	user.SecurityStamp = stamp
	user.RefreshTokenExpiresAt = nil
	return nil
}

func (s *Service) findUser(ctx context.Context, userID string) (*UserInfo, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *Service) view(ctx context.Context, user *UserInfo) (*UserView, error) {
	roles, err := s.store.GetRoles(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("get roles: %w", err)
	}

	view := newUserView(user, roles)
	return &view, nil
}
