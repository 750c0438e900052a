// AngelaMos | 2026
// dto.go

package auth

import (
	"time"
)

type RegisterRequest struct {
	Email     string `json:"email"     validate:"required,email,max=256"`
	Password  string `json:"password"  validate:"required,min=6,max=128"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName"  validate:"required,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=256"`
	Password string `json:"password" validate:"required,max=128"`
}

type RefreshTokenRequest struct {
	Token        string `json:"token"        validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type UpdateUserRequest struct {
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName"  validate:"max=100"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword"     validate:"required,min=6,max=128"`
}

type AssignRoleRequest struct {
	UserID   string `json:"userId"   validate:"required"`
	RoleName string `json:"roleName" validate:"required,max=256"`
}

// UserView is the public projection of an account. UserType is the
// enumerated name, never the numeric value.
type UserView struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	UserType  string   `json:"userType"`
	Roles     []string `json:"roles"`
	IsActive  bool     `json:"isActive"`
}

type AuthResult struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         UserView  `json:"user"`
}

func newUserView(user *UserInfo, roles []string) UserView {
	if roles == nil {
		roles = []string{}
	}

	return UserView{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		UserType:  user.UserType.String(),
		Roles:     roles,
		IsActive:  user.IsActive,
	}
}
