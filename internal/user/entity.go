// AngelaMos | 2026
// entity.go

package user

import (
	"time"

	"github.com/flightscheduly/backend/internal/auth"
)

type User struct {
	ID                           string     `db:"id"`
	Email                        string     `db:"email"`
	PasswordHash                 string     `db:"password_hash"`
	FirstName                    string     `db:"first_name"`
	LastName                     string     `db:"last_name"`
	UserType                     int        `db:"user_type"`
	CreatedAt                    time.Time  `db:"created_at"`
	LastLoginAt                  *time.Time `db:"last_login_at"`
	LicenseExpirationDate        *time.Time `db:"license_expiration_date"`
	RadioLicenseExpirationDate   *time.Time `db:"radio_license_expiration_date"`
	MedicalLicenseExpirationDate *time.Time `db:"medical_license_expiration_date"`
	IsActive                     bool       `db:"is_active"`
	SecurityStamp                string     `db:"security_stamp"`
	RefreshTokenExpiresAt        *time.Time `db:"refresh_token_expires_at"`
	AccessFailedCount            int        `db:"access_failed_count"`
	LockoutEnd                   *time.Time `db:"lockout_end"`
	LockoutEnabled               bool       `db:"lockout_enabled"`
	UpdatedAt                    time.Time  `db:"updated_at"`
}

// IsLockedOut reports whether a lockout window is still open at now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnabled && u.LockoutEnd != nil && now.Before(*u.LockoutEnd)
}

func (u *User) toInfo() *auth.UserInfo {
	return &auth.UserInfo{
		ID:                    u.ID,
		Email:                 u.Email,
		FirstName:             u.FirstName,
		LastName:              u.LastName,
		UserType:              auth.UserType(u.UserType),
		CreatedAt:             u.CreatedAt,
		LastLoginAt:           u.LastLoginAt,
		IsActive:              u.IsActive,
		SecurityStamp:         u.SecurityStamp,
		RefreshTokenExpiresAt: u.RefreshTokenExpiresAt,
	}
}

type Role struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
}
