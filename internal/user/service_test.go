// AngelaMos | 2026
// service_test.go

package user

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightscheduly/backend/internal/auth"
	"github.com/flightscheduly/backend/internal/config"
	"github.com/flightscheduly/backend/internal/core"
)

type memoryRepo struct {
	users     map[string]*User
	roles     map[string]*Role
	userRoles map[string][]string
}

func newMemoryRepo() *memoryRepo {
	r := &memoryRepo{
		users:     make(map[string]*User),
		roles:     make(map[string]*Role),
		userRoles: make(map[string][]string),
	}
	for _, name := range []string{
		auth.RoleAdministrator, auth.RoleInstructor, auth.RoleStudent, auth.RolePilot,
	} {
		r.roles[name] = &Role{ID: uuid.New().String(), Name: name}
	}
	return r
}

func (r *memoryRepo) Create(_ context.Context, user *User) error {
	for _, u := range r.users {
		if u.Email == user.Email {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	clone := *u
	return &clone, nil
}

func (r *memoryRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
}

func (r *memoryRepo) UpdateProfile(_ context.Context, id, firstName, lastName string) error {
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("update profile: %w", core.ErrNotFound)
	}
	u.FirstName, u.LastName = firstName, lastName
	return nil
}

func (r *memoryRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("record login: %w", core.ErrNotFound)
	}
	u.LastLoginAt = &at
	return nil
}

func (r *memoryRepo) SetSecurityStamp(
	_ context.Context,
	id, stamp string,
	expiresAt *time.Time,
) error {
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("set security stamp: %w", core.ErrNotFound)
	}
	u.SecurityStamp, u.RefreshTokenExpiresAt = stamp, expiresAt
	return nil
}

func (r *memoryRepo) SwapSecurityStamp(
	_ context.Context,
	id, current, next string,
	expiresAt *time.Time,
) (bool, error) {
	u, ok := r.users[id]
	if !ok || !u.IsActive || u.SecurityStamp != current {
		return false, nil
	}
	u.SecurityStamp, u.RefreshTokenExpiresAt = next, expiresAt
	return true, nil
}

func (r *memoryRepo) Promote(_ context.Context, id string, userType int) error {
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("promote user: %w", core.ErrNotFound)
	}
	u.UserType, u.IsActive = userType, true
	return nil
}

func (r *memoryRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("update password: %w", core.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *memoryRepo) UpdateLockout(
	_ context.Context,
	id string,
	failedCount int,
	lockoutEnd *time.Time,
) error {
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("update lockout: %w", core.ErrNotFound)
	}
	u.AccessFailedCount = failedCount
	u.LockoutEnd = lockoutEnd
	return nil
}

func (r *memoryRepo) SetActive(_ context.Context, id string, active bool) error {
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("set active: %w", core.ErrNotFound)
	}
	u.IsActive = active
	return nil
}

func (r *memoryRepo) List(_ context.Context, params ListUsersParams) ([]User, int, error) {
	var out []User
	for _, u := range r.users {
		if params.Search != "" && !strings.Contains(u.Email, params.Search) {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetRoleByName(_ context.Context, name string) (*Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return nil, fmt.Errorf("get role: %w", core.ErrNotFound)
	}
	return role, nil
}

func (r *memoryRepo) GetRoleNames(_ context.Context, userID string) ([]string, error) {
	var names []string
	for _, roleID := range r.userRoles[userID] {
		for _, role := range r.roles {
			if role.ID == roleID {
				names = append(names, role.Name)
			}
		}
	}
	return names, nil
}

func (r *memoryRepo) AddUserRole(_ context.Context, userID, roleID string) error {
	if slices.Contains(r.userRoles[userID], roleID) {
		return fmt.Errorf("add user role: %w", core.ErrDuplicateKey)
	}
	r.userRoles[userID] = append(r.userRoles[userID], roleID)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, NewPasswordPolicy(defaultPolicy()), config.LockoutConfig{
		Enabled:           true,
		MaxFailedAttempts: 3,
		Duration:          15 * time.Minute,
	})
	return svc, repo
}

func createUser(t *testing.T, svc *Service, email string) *auth.UserInfo {
	t.Helper()
	info, err := svc.Create(context.Background(), auth.NewUser{
		Email:     email,
		FirstName: "Wiley",
		LastName:  "Post",
		UserType:  auth.UserTypeStudent,
	}, "Secret123")
	require.NoError(t, err)
	return info
}

func TestCreate(t *testing.T) {
	svc, repo := newTestService(t)

	info := createUser(t, svc, "  Pilot@Example.com ")

	assert.Equal(t, "pilot@example.com", info.Email)
	assert.Equal(t, auth.UserTypeStudent, info.UserType)
	assert.True(t, info.IsActive)
	assert.NotEmpty(t, info.SecurityStamp)

	stored := repo.users[info.ID]
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	assert.True(t, stored.LockoutEnabled)
}

func TestCreateRejections(t *testing.T) {
	svc, _ := newTestService(t)
	createUser(t, svc, "pilot@example.com")

	_, err := svc.Create(context.Background(), auth.NewUser{
		Email:     "pilot@example.com",
		FirstName: "Wiley",
		LastName:  "Post",
	}, "Secret123")

	var identityErrs auth.IdentityErrors
	require.ErrorAs(t, err, &identityErrs)
	assert.Equal(t, auth.IdentityErrors{"Email 'pilot@example.com' is already taken."}, identityErrs)

	_, err = svc.Create(context.Background(), auth.NewUser{
		Email: "other@example.com",
	}, "weak")
	require.ErrorAs(t, err, &identityErrs)
	assert.Contains(t, identityErrs, "Passwords must be at least 6 characters.")
}

func TestFindByIDRejectsMalformedID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.FindByID(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestVerifyPasswordLockout(t *testing.T) {
	svc, repo := newTestService(t)
	info := createUser(t, svc, "pilot@example.com")
	ctx := context.Background()

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	for i := 1; i < 3; i++ {
		result, err := svc.VerifyPassword(ctx, info, "wrong")
		require.NoError(t, err)
		assert.Equal(t, auth.PasswordFailed, result)
		assert.Equal(t, i, repo.users[info.ID].AccessFailedCount)
	}

	result, err := svc.VerifyPassword(ctx, info, "wrong")
	require.NoError(t, err)
	assert.Equal(t, auth.PasswordLockedOut, result)
	require.NotNil(t, repo.users[info.ID].LockoutEnd)
	assert.Zero(t, repo.users[info.ID].AccessFailedCount)

	result, err = svc.VerifyPassword(ctx, info, "Secret123")
	require.NoError(t, err)
	assert.Equal(t, auth.PasswordLockedOut, result)

	now = now.Add(16 * time.Minute)
	result, err = svc.VerifyPassword(ctx, info, "Secret123")
	require.NoError(t, err)
	assert.Equal(t, auth.PasswordSucceeded, result)
	assert.Nil(t, repo.users[info.ID].LockoutEnd)
}

func TestVerifyPasswordResetsCounterOnSuccess(t *testing.T) {
	svc, repo := newTestService(t)
	info := createUser(t, svc, "pilot@example.com")
	ctx := context.Background()

	_, err := svc.VerifyPassword(ctx, info, "wrong")
	require.NoError(t, err)
	require.Equal(t, 1, repo.users[info.ID].AccessFailedCount)

	result, err := svc.VerifyPassword(ctx, info, "Secret123")
	require.NoError(t, err)
	assert.Equal(t, auth.PasswordSucceeded, result)
	assert.Zero(t, repo.users[info.ID].AccessFailedCount)
}

func TestVerifyPasswordWithoutLockout(t *testing.T) {
	svc, repo := newTestService(t)
	svc.lockout.Enabled = false
	info := createUser(t, svc, "pilot@example.com")

	for range 5 {
		result, err := svc.VerifyPassword(context.Background(), info, "wrong")
		require.NoError(t, err)
		assert.Equal(t, auth.PasswordFailed, result)
	}
	assert.Zero(t, repo.users[info.ID].AccessFailedCount)
}

func TestRoles(t *testing.T) {
	svc, _ := newTestService(t)
	info := createUser(t, svc, "pilot@example.com")
	ctx := context.Background()

	roles, err := svc.GetRoles(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, []string{}, roles)

	require.NoError(t, svc.AddRole(ctx, info, auth.RoleStudent))

	err = svc.AddRole(ctx, info, auth.RoleStudent)
	assert.Equal(t, auth.IdentityErrors{"User already in role 'Student'."}, err)

	err = svc.AddRole(ctx, info, "Astronaut")
	assert.Equal(t, auth.IdentityErrors{"Role Astronaut does not exist."}, err)

	exists, err := svc.RoleExists(ctx, auth.RoleInstructor)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.RoleExists(ctx, "Astronaut")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	info := createUser(t, svc, "pilot@example.com")
	ctx := context.Background()

	err := svc.ChangePassword(ctx, info, "wrong", "Newer456")
	assert.Equal(t, auth.IdentityErrors{"Incorrect password."}, err)

	err = svc.ChangePassword(ctx, info, "Secret123", "short")
	var identityErrs auth.IdentityErrors
	require.ErrorAs(t, err, &identityErrs)

	require.NoError(t, svc.ChangePassword(ctx, info, "Secret123", "Newer456"))

	result, err := svc.VerifyPassword(ctx, info, "Newer456")
	require.NoError(t, err)
	assert.Equal(t, auth.PasswordSucceeded, result)
}

func TestEnsureAdministrator(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	admin, created, err := svc.EnsureAdministrator(ctx, "ops@example.com", "Admin123!")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, auth.UserTypeAdministrator, admin.UserType)

	roles, err := svc.GetRoles(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleAdministrator}, roles)

	again, created, err := svc.EnsureAdministrator(ctx, "ops@example.com", "ignored")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)
}

func TestEnsureAdministratorPromotesExistingAccount(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	info := createUser(t, svc, "cfi@example.com")
	require.NoError(t, svc.SetActive(ctx, info.ID, false))

	promoted, created, err := svc.EnsureAdministrator(ctx, "cfi@example.com", "Admin123!")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, info.ID, promoted.ID)

	stored := repo.users[info.ID]
	assert.Equal(t, int(auth.UserTypeAdministrator), stored.UserType)
	assert.True(t, stored.IsActive)

	roles, err := svc.GetRoles(ctx, promoted)
	require.NoError(t, err)
	assert.Contains(t, roles, auth.RoleAdministrator)
}

func TestProfileWriteFromStaleReadKeepsRotatedStamp(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	info := createUser(t, svc, "pilot@example.com")
	expires := time.Now().Add(time.Hour).UTC()
	require.NoError(t, svc.SetSecurityStamp(ctx, info.ID, "refresh-1", &expires))

	snapshot, err := svc.FindByID(ctx, info.ID)
	require.NoError(t, err)

	swapped, err := svc.SwapSecurityStamp(ctx, info.ID, "refresh-1", "refresh-2", &expires)
	require.NoError(t, err)
	require.True(t, swapped)

	require.NoError(t, svc.UpdateProfile(ctx, snapshot.ID, "Amelia", snapshot.LastName))

	stored := repo.users[info.ID]
	assert.Equal(t, "Amelia", stored.FirstName)
	assert.Equal(t, "refresh-2", stored.SecurityStamp)

	swapped, err = svc.SwapSecurityStamp(ctx, info.ID, "refresh-1", "refresh-3", &expires)
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, "refresh-2", repo.users[info.ID].SecurityStamp)
}

func TestWritesAfterDeactivationKeepAccountInactive(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	info := createUser(t, svc, "pilot@example.com")

	snapshot, err := svc.FindByID(ctx, info.ID)
	require.NoError(t, err)
	require.True(t, snapshot.IsActive)

	require.NoError(t, svc.SetActive(ctx, info.ID, false))

	require.NoError(t, svc.UpdateProfile(ctx, snapshot.ID, "Amelia", snapshot.LastName))
	require.NoError(t, svc.RecordLogin(ctx, snapshot.ID, time.Now().UTC()))
	require.NoError(t, svc.SetSecurityStamp(ctx, snapshot.ID, "refresh-9", nil))

	swapped, err := svc.SwapSecurityStamp(ctx, snapshot.ID, "refresh-9", "refresh-10", nil)
	require.NoError(t, err)
	assert.False(t, swapped)

	reread, err := svc.FindByID(ctx, info.ID)
	require.NoError(t, err)
	assert.False(t, reread.IsActive)
	assert.Equal(t, auth.UserTypeStudent, reread.UserType)
	assert.False(t, repo.users[info.ID].IsActive)
}

func TestUnlockAndSetActiveRejectMalformedID(t *testing.T) {
	svc, _ := newTestService(t)

	require.ErrorIs(t, svc.Unlock(context.Background(), "nope"), core.ErrNotFound)
	require.ErrorIs(t, svc.SetActive(context.Background(), "nope", true), core.ErrNotFound)
}
