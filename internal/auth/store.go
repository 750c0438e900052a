// AngelaMos | 2026
// store.go

package auth

import (
	"context"
	"strconv"
	"strings"
	"time"
)

type UserType int

const (
	UserTypeInstructor    UserType = 1
	UserTypeStudent       UserType = 2
	UserTypePilot         UserType = 3
	UserTypeAdministrator UserType = 4
)

func (t UserType) String() string {
	switch t {
	case UserTypeInstructor:
		return "Instructor"
	case UserTypeStudent:
		return "Student"
	case UserTypePilot:
		return "Pilot"
	case UserTypeAdministrator:
		return "Administrator"
	default:
		return strconv.Itoa(int(t))
	}
}

const (
	RoleAdministrator = "Administrator"
	RoleInstructor    = "Instructor"
	RoleStudent       = "Student"
	RolePilot         = "Pilot"
)

// UserInfo is the credential store's view of an account. The password hash
// and lockout counters never leave the store.
type UserInfo struct {
	ID                    string
	Email                 string
	FirstName             string
	LastName              string
	UserType              UserType
	CreatedAt             time.Time
	LastLoginAt           *time.Time
	IsActive              bool
	SecurityStamp         string
	RefreshTokenExpiresAt *time.Time
}

func (u *UserInfo) FullName() string {
	return u.FirstName + " " + u.LastName
}

type NewUser struct {
	Email     string
	FirstName string
	LastName  string
	UserType  UserType
}

type PasswordResult int

const (
	PasswordFailed PasswordResult = iota
	PasswordSucceeded
	PasswordLockedOut
)

// IdentityErrors is returned by the store when it rejects a mutation
// (policy violations, duplicate email, role already assigned).
type IdentityErrors []string

func (e IdentityErrors) Error() string {
	return strings.Join(e, ", ")
}

// CredentialStore owns user records, password hashes, lockout state and
// role assignments. Lookup misses are reported as wrapped core.ErrNotFound.
//
// Writes are scoped to the columns an operation changes, so a write made
// from a stale read never restores the active flag, user type or a consumed
// security stamp.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*UserInfo, error)
	FindByID(ctx context.Context, id string) (*UserInfo, error)
	Create(ctx context.Context, profile NewUser, password string) (*UserInfo, error)
	UpdateProfile(ctx context.Context, userID, firstName, lastName string) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
	SetSecurityStamp(ctx context.Context, userID, stamp string, expiresAt *time.Time) error
	// SwapSecurityStamp replaces current with next only while current is
	// still stored and the account is active. It reports false otherwise.
	SwapSecurityStamp(
		ctx context.Context,
		userID, current, next string,
		expiresAt *time.Time,
	) (bool, error)
	VerifyPassword(ctx context.Context, user *UserInfo, password string) (PasswordResult, error)
	GetRoles(ctx context.Context, user *UserInfo) ([]string, error)
	AddRole(ctx context.Context, user *UserInfo, role string) error
	RoleExists(ctx context.Context, role string) (bool, error)
	ChangePassword(ctx context.Context, user *UserInfo, currentPassword, newPassword string) error
}
