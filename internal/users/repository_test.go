package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/database"
	"spis/m/internal/database/dbtest"
	"spis/m/internal/users"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool     { return &b }

func newRepo(t *testing.T) (*users.Repository, *database.DB) {
	db := dbtest.Open(t)
	return users.NewRepository(db, bcrypt.MinCost, 6), db
}

func TestCreateDefaultsToPharmacist(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	u, err := repo.Create(ctx, users.CreateInput{Username: "asha", Email: " Asha@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RolePharmacist, u.Role)
	assert.Equal(t, "asha@example.com", u.Email)
	assert.True(t, u.IsActive)
	assert.True(t, users.CheckPassword(u.PasswordHash, "secret1"))
	assert.False(t, users.CheckPassword(u.PasswordHash, "wrong"))
}

func TestCreateRejectsDuplicatesAndShortPasswords(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, users.CreateInput{Username: "asha", Email: "asha@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, users.CreateInput{Username: "other", Email: "ASHA@example.com", Password: "secret1"})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	_, err = repo.Create(ctx, users.CreateInput{Username: "asha", Email: "new@example.com", Password: "secret1"})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	_, err = repo.Create(ctx, users.CreateInput{Username: "bob", Email: "bob@example.com", Password: "123"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Create(ctx, users.CreateInput{Username: "eve", Email: "eve@example.com", Password: "secret1", Role: "owner"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestUpdateOnlyTouchesAllowedFields(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	u, err := repo.Create(ctx, users.CreateInput{Username: "ravi", Email: "ravi@example.com", Password: "secret1"})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, u.ID, users.UpdateInput{FullName: strPtr("Ravi Kumar"), Role: strPtr("manager")})
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", *updated.FullName)
	assert.Equal(t, domain.RoleManager, updated.Role)
	assert.Equal(t, u.Email, updated.Email)
	assert.Equal(t, u.PasswordHash, updated.PasswordHash)

	_, err = repo.Update(ctx, u.ID, users.UpdateInput{})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Update(ctx, 9999, users.UpdateInput{Phone: strPtr("1")})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestListFilters(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, users.CreateInput{Username: "admin1", Email: "a@example.com", Password: "secret1", Role: "admin"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, users.CreateInput{Username: "pharm1", Email: "p@example.com", Password: "secret1", IsActive: boolPtr(false)})
	require.NoError(t, err)

	all, err := repo.List(ctx, users.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	admins, err := repo.List(ctx, users.ListFilter{Role: "admin"})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin1", admins[0].Username)

	inactive, err := repo.List(ctx, users.ListFilter{Active: boolPtr(false)})
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, "pharm1", inactive[0].Username)

	found, err := repo.List(ctx, users.ListFilter{Search: "PHARM"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	n, err := repo.CountByRole(ctx, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func insertSession(t *testing.T, db *database.DB, userID int64, tokenID string) {
	t.Helper()
	now := database.Now()
	_, err := db.Exec(db.Rebind(`INSERT INTO sessions (user_id, token_id, refresh_token_hash, expires_at, refresh_expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		userID, tokenID, "hash-"+tokenID, now.Add(time.Hour), now.Add(24*time.Hour), now)
	require.NoError(t, err)
}

func openSessions(t *testing.T, db *database.DB, userID int64) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, db.Rebind(`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND revoked_at IS NULL`), userID))
	return n
}

func TestToggleStatusRevokesSessionsOnDeactivate(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	u, err := repo.Create(ctx, users.CreateInput{Username: "meena", Email: "meena@example.com", Password: "secret1"})
	require.NoError(t, err)
	insertSession(t, db, u.ID, "jti-1")

	off, err := repo.ToggleStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	assert.Equal(t, 0, openSessions(t, db, u.ID))

	on, err := repo.ToggleStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, on.IsActive)

	_, err = repo.ToggleStatus(ctx, 4242)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestResetPassword(t *testing.T) {
	repo, db := newRepo(t)
	ctx := context.Background()

	u, err := repo.Create(ctx, users.CreateInput{Username: "kiran", Email: "kiran@example.com", Password: "secret1"})
	require.NoError(t, err)
	insertSession(t, db, u.ID, "jti-a")
	insertSession(t, db, u.ID, "jti-b")

	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(repo.ResetPassword(ctx, u.ID, "abc")))
	require.NoError(t, repo.ResetPassword(ctx, u.ID, "n3w-secret"))

	reloaded, err := repo.GetByEmail(ctx, "kiran@example.com")
	require.NoError(t, err)
	assert.True(t, users.CheckPassword(reloaded.PasswordHash, "n3w-secret"))
	assert.Equal(t, 0, openSessions(t, db, u.ID))

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.True(t, users.IsNotFound(err))
}

func TestHashPasswordCostBounds(t *testing.T) {
	_, err := users.HashPassword("secret", 99)
	assert.Error(t, err)
	hash, err := users.HashPassword("secret", 0)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestLastActiveAdminCannotBeDemotedOrDeactivated(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, users.CreateInput{Username: "root", Email: "root@example.com", Password: "secret1", Role: "admin"})
	require.NoError(t, err)

	_, err = repo.Update(ctx, first.ID, users.UpdateInput{Role: strPtr("pharmacist")})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	_, err = repo.Update(ctx, first.ID, users.UpdateInput{IsActive: boolPtr(false)})
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	_, err = repo.ToggleStatus(ctx, first.ID)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	_, err = repo.Update(ctx, first.ID, users.UpdateInput{FullName: strPtr("Root"), Role: strPtr("admin")})
	require.NoError(t, err)

	second, err := repo.Create(ctx, users.CreateInput{Username: "root2", Email: "root2@example.com", Password: "secret1", Role: "admin"})
	require.NoError(t, err)
	demoted, err := repo.Update(ctx, first.ID, users.UpdateInput{Role: strPtr("manager")})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, demoted.Role)

	_, err = repo.ToggleStatus(ctx, second.ID)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	n, err := repo.CountByRole(ctx, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
