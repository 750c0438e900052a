// AngelaMos | 2026
// repository_test.go

package user

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightscheduly/backend/internal/core"
)

const testUserID = "9b2f6a1e-54c3-4f0e-9d8a-3c1b7e2f4a10"

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var userColumnNames = []string{
	"id", "email", "password_hash", "first_name", "last_name", "user_type",
	"created_at", "last_login_at", "license_expiration_date",
	"radio_license_expiration_date", "medical_license_expiration_date",
	"is_active", "security_stamp", "refresh_token_expires_at",
	"access_failed_count", "lockout_end", "lockout_enabled", "updated_at",
}

func userRow(now time.Time) []driver.Value {
	return []driver.Value{
		testUserID, "pilot@example.com", "$argon2id$hash", "Wiley", "Post", 2,
		now, nil, nil,
		nil, nil,
		true, "stamp", nil,
		1, nil, true, now,
	}
}

func TestRepositoryGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(userColumnNames).AddRow(userRow(now)...))

	user, err := repo.GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "pilot@example.com", user.Email)
	assert.Equal(t, 2, user.UserType)
	assert.Equal(t, 1, user.AccessFailedCount)
	assert.Nil(t, user.LastLoginAt)
	assert.True(t, user.LockoutEnabled)
}

func TestRepositoryGetByEmailNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userColumnNames))

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRepositoryCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	user := &User{
		ID:             testUserID,
		Email:          "pilot@example.com",
		PasswordHash:   "$argon2id$hash",
		FirstName:      "Wiley",
		LastName:       "Post",
		UserType:       2,
		IsActive:       true,
		SecurityStamp:  "stamp",
		LockoutEnabled: true,
	}

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(user.ID, user.Email, user.PasswordHash, user.FirstName,
			user.LastName, user.UserType, true, "stamp", true).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Create(context.Background(), user))
	assert.Equal(t, now, user.CreatedAt)
}

func TestRepositoryCreateDuplicateEmail(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &User{ID: testUserID})
	require.ErrorIs(t, err, core.ErrDuplicateKey)
}

func TestRepositoryScopedWrites(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE users\s+SET first_name = \$2, last_name = \$3, updated_at = NOW\(\)\s+WHERE id = \$1`).
		WithArgs(testUserID, "Wiley", "Post").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateProfile(ctx, testUserID, "Wiley", "Post"))

	mock.ExpectExec(`UPDATE users\s+SET last_login_at = \$2, updated_at = NOW\(\)\s+WHERE id = \$1`).
		WithArgs(testUserID, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RecordLogin(ctx, testUserID, now))

	mock.ExpectExec(`UPDATE users\s+SET security_stamp = \$2, refresh_token_expires_at = \$3`).
		WithArgs(testUserID, "revoked-stamp", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetSecurityStamp(ctx, testUserID, "revoked-stamp", nil))

	mock.ExpectExec(`UPDATE users\s+SET user_type = \$2, is_active = TRUE`).
		WithArgs(testUserID, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Promote(ctx, testUserID, 3))

	mock.ExpectExec(`UPDATE users\s+SET first_name`).
		WithArgs(testUserID, "Wiley", "Post").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.UpdateProfile(ctx, testUserID, "Wiley", "Post"), core.ErrNotFound)
}

func TestRepositorySwapSecurityStamp(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	expires := time.Now().UTC().Add(7 * 24 * time.Hour)

	mock.ExpectExec(`WHERE id = \$1 AND security_stamp = \$2 AND is_active`).
		WithArgs(testUserID, "refresh-1", "refresh-2", expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	swapped, err := repo.SwapSecurityStamp(ctx, testUserID, "refresh-1", "refresh-2", &expires)
	require.NoError(t, err)
	assert.True(t, swapped)

	mock.ExpectExec(`WHERE id = \$1 AND security_stamp = \$2 AND is_active`).
		WithArgs(testUserID, "refresh-1", "refresh-3", expires).
		WillReturnResult(sqlmock.NewResult(0, 0))

	swapped, err = repo.SwapSecurityStamp(ctx, testUserID, "refresh-1", "refresh-3", &expires)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestRepositoryUpdateLockoutMissingUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE users\s+SET access_failed_count`).
		WithArgs(testUserID, 0, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateLockout(context.Background(), testUserID, 0, nil)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRepositoryList(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE TRUE AND \(email ILIKE \$1`).
		WithArgs(`%o\_brien%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery(`ORDER BY created_at DESC\s+LIMIT \$2 OFFSET \$3`).
		WithArgs(`%o\_brien%`, 10, 10).
		WillReturnRows(sqlmock.NewRows(userColumnNames).AddRow(userRow(now)...))

	users, total, err := repo.List(context.Background(), ListUsersParams{
		Page:     2,
		PageSize: 10,
		Search:   "o_brien",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, testUserID, users[0].ID)
}

func TestRepositoryRoles(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, name, description FROM roles WHERE name = \$1`).
		WithArgs("Astronaut").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description"}))

	_, err := repo.GetRoleByName(ctx, "Astronaut")
	require.ErrorIs(t, err, core.ErrNotFound)

	mock.ExpectQuery(`SELECT r.name\s+FROM user_roles ur`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Student").AddRow("Instructor"))

	names, err := repo.GetRoleNames(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Student", "Instructor"}, names)

	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs(testUserID, "role-1").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.AddUserRole(ctx, testUserID, "role-1")
	require.ErrorIs(t, err, core.ErrDuplicateKey)

	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs(testUserID, "role-2").
		WillReturnError(errors.New("connection reset"))

	err = repo.AddUserRole(ctx, testUserID, "role-2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrDuplicateKey)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%\_a\\b`, escapeLike(`100%_a\b`))
}
