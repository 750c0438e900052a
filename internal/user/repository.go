// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flightscheduly/backend/internal/core"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, id, firstName, lastName string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	SetSecurityStamp(ctx context.Context, id, stamp string, expiresAt *time.Time) error
	SwapSecurityStamp(ctx context.Context, id, current, next string, expiresAt *time.Time) (bool, error)
	Promote(ctx context.Context, id string, userType int) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateLockout(ctx context.Context, id string, failedCount int, lockoutEnd *time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context, params ListUsersParams) ([]User, int, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	GetRoleNames(ctx context.Context, userID string) ([]string, error)
	AddUserRole(ctx context.Context, userID, roleID string) error
}

const userColumns = `id, email, password_hash, first_name, last_name, user_type,
		       created_at, last_login_at, license_expiration_date,
		       radio_license_expiration_date, medical_license_expiration_date,
		       is_active, security_stamp, refresh_token_expires_at,
		       access_failed_count, lockout_end, lockout_enabled, updated_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name,
		                   user_type, is_active, security_stamp, lockout_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.GetContext(ctx, user, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.UserType,
		user.IsActive,
		user.SecurityStamp,
		user.LockoutEnabled,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return &user, nil
}

func (r *repository) UpdateProfile(
	ctx context.Context,
	id, firstName, lastName string,
) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, updated_at = NOW()
		WHERE id = $1`

	return r.execOne(ctx, "update profile", query, id, firstName, lastName)
}

func (r *repository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE users
		SET last_login_at = $2, updated_at = NOW()
		WHERE id = $1`

	return r.execOne(ctx, "record login", query, id, at)
}

func (r *repository) SetSecurityStamp(
	ctx context.Context,
	id, stamp string,
	expiresAt *time.Time,
) error {
	query := `
		UPDATE users
		SET security_stamp = $2, refresh_token_expires_at = $3, updated_at = NOW()
		WHERE id = $1`

	return r.execOne(ctx, "set security stamp", query, id, stamp, expiresAt)
}

// SwapSecurityStamp replaces the stamp only if it still equals current on
// an active account. False means another request consumed it first or the
// account was deactivated since it was read.
func (r *repository) SwapSecurityStamp(
	ctx context.Context,
	id, current, next string,
	expiresAt *time.Time,
) (bool, error) {
	query := `
		UPDATE users
		SET security_stamp = $3, refresh_token_expires_at = $4, updated_at = NOW()
		WHERE id = $1 AND security_stamp = $2 AND is_active`

	result, err := r.db.ExecContext(ctx, query, id, current, next, expiresAt)
	if err != nil {
		return false, fmt.Errorf("swap security stamp: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap security stamp: %w", err)
	}

	return rows == 1, nil
}

// Promote sets the user type and reactivates the account in one statement.
func (r *repository) Promote(ctx context.Context, id string, userType int) error {
	query := `
		UPDATE users
		SET user_type = $2, is_active = TRUE, updated_at = NOW()
		WHERE id = $1`

	return r.execOne(ctx, "promote user", query, id, userType)
}

func (r *repository) UpdatePassword(
	ctx context.Context,
	id, passwordHash string,
) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1`

	return r.execOne(ctx, "update password", query, id, passwordHash)
}

func (r *repository) UpdateLockout(
	ctx context.Context,
	id string,
	failedCount int,
	lockoutEnd *time.Time,
) error {
	query := `
		UPDATE users
		SET access_failed_count = $2, lockout_end = $3, updated_at = NOW()
		WHERE id = $1`

	return r.execOne(ctx, "update lockout", query, id, failedCount, lockoutEnd)
}

func (r *repository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE users
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1`

	return r.execOne(ctx, "set active", query, id, active)
}

func (r *repository) List(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	params.Normalize()

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, "TRUE")

	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)",
			argIdx, argIdx, argIdx))
		args = append(args, "%"+escapeLike(params.Search)+"%")
		argIdx++
	}

	if params.UserType != 0 {
		conditions = append(conditions, fmt.Sprintf("user_type = $%d", argIdx))
		args = append(args, params.UserType)
		argIdx++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM users WHERE %s",
		whereClause,
	)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		userColumns, whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var users []User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	return users, total, nil
}

func (r *repository) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `SELECT id, name, description FROM roles WHERE name = $1`

	var role Role
	err := r.db.GetContext(ctx, &role, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get role: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}

	return &role, nil
}

func (r *repository) GetRoleNames(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.assigned_at, r.name`

	var names []string
	if err := r.db.SelectContext(ctx, &names, query, userID); err != nil {
		return nil, fmt.Errorf("get user roles: %w", err)
	}

	return names, nil
}

func (r *repository) AddUserRole(ctx context.Context, userID, roleID string) error {
	query := `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`

	if _, err := r.db.ExecContext(ctx, query, userID, roleID); err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("add user role: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("add user role: %w", err)
	}

	return nil
}

func (r *repository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
