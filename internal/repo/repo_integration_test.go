package repo_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/server/internal/auth"
	"github.com/finboard/server/internal/model"
	"github.com/finboard/server/internal/repo"
	"github.com/finboard/server/internal/tests"
)

func newUser(email string) *model.User {
	return &model.User{
		Name:         "Ana Lima",
		Email:        email,
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuu7l0Yc7m5sZ2dXx6V9wq6i7h2T9Q2l5W",
		Role:         model.RoleUser,
		Status:       model.StatusActive,
	}
}

func TestRepositories(t *testing.T) {
	database := tests.OpenMigrated(t)
	ctx := t.Context()
	users := repo.NewUserRepo(database)
	refresh := repo.NewRefreshRepo(database)
	resets := repo.NewResetRepo(database)

	u := newUser("  Ana@Example.COM ")
	require.NoError(t, users.Create(ctx, u))
	require.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, "ana@example.com", u.Email)

	t.Run("lookups are case insensitive", func(t *testing.T) {
		got, err := users.GetByEmail(ctx, "ANA@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Nil(t, got.LastLoginAt)

		exists, err := users.EmailExists(ctx, "ana@EXAMPLE.com")
		require.NoError(t, err)
		assert.True(t, exists)

		_, err = users.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := users.Create(ctx, newUser("ana@example.com"))
		assert.ErrorIs(t, err, repo.ErrDuplicateEmail)
	})

	t.Run("refresh token is replaced per user", func(t *testing.T) {
		expires := time.Now().Add(time.Hour)
		require.NoError(t, refresh.Upsert(ctx, u.ID, hashOf("a"), expires))
		require.NoError(t, refresh.Upsert(ctx, u.ID, hashOf("b"), expires))

		_, _, err := refresh.FindActive(ctx, hashOf("a"))
		assert.ErrorIs(t, err, repo.ErrNotFound)

		row, owner, err := refresh.FindActive(ctx, hashOf("b"))
		require.NoError(t, err)
		assert.Equal(t, u.ID, row.UserID)
		assert.Equal(t, u.Email, owner.Email)

		require.NoError(t, refresh.DeleteByTokenHash(ctx, hashOf("b")))
		require.NoError(t, refresh.DeleteByTokenHash(ctx, hashOf("b")))
		_, _, err = refresh.FindActive(ctx, hashOf("b"))
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("expired tokens are not found", func(t *testing.T) {
		require.NoError(t, refresh.Upsert(ctx, u.ID, hashOf("old"), time.Now().Add(-time.Minute)))
		_, _, err := refresh.FindActive(ctx, hashOf("old"))
		assert.ErrorIs(t, err, repo.ErrNotFound)

		require.NoError(t, resets.Upsert(ctx, u.ID, hashOf("old-reset"), time.Now().Add(-time.Minute)))
		_, _, err = resets.FindActive(ctx, hashOf("old-reset"))
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("reset password consumes token and revokes sessions", func(t *testing.T) {
		expires := time.Now().Add(time.Hour)
		require.NoError(t, refresh.Upsert(ctx, u.ID, hashOf("session"), expires))
		require.NoError(t, resets.Upsert(ctx, u.ID, hashOf("reset"), expires))

		_, owner, err := resets.FindActive(ctx, hashOf("reset"))
		require.NoError(t, err)
		require.NoError(t, users.ResetPassword(ctx, owner.ID, "new-hash"))

		_, _, err = resets.FindActive(ctx, hashOf("reset"))
		assert.ErrorIs(t, err, repo.ErrNotFound)
		_, _, err = refresh.FindActive(ctx, hashOf("session"))
		assert.ErrorIs(t, err, repo.ErrNotFound)

		got, err := users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
	})

	t.Run("status and role", func(t *testing.T) {
		require.NoError(t, refresh.Upsert(ctx, u.ID, hashOf("live"), time.Now().Add(time.Hour)))
		require.NoError(t, users.SetStatus(ctx, u.ID, model.StatusSuspended))
		_, _, err := refresh.FindActive(ctx, hashOf("live"))
		assert.ErrorIs(t, err, repo.ErrNotFound)

		require.NoError(t, users.SetStatus(ctx, u.ID, model.StatusActive))
		require.NoError(t, users.SetRole(ctx, u.ID, model.RoleManager))
		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, users.UpdateLastLogin(ctx, u.ID, now))

		got, err := users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, got.Status)
		assert.Equal(t, model.RoleManager, got.Role)
		require.NotNil(t, got.LastLoginAt)
		assert.True(t, now.Equal(*got.LastLoginAt))

		assert.Error(t, users.SetStatus(ctx, u.ID, model.StatusDeleted))
		assert.ErrorIs(t, users.SetRole(ctx, uuid.New(), model.RoleAdmin), repo.ErrNotFound)
	})

	t.Run("soft delete hides the user and frees the email", func(t *testing.T) {
		require.NoError(t, users.SoftDelete(ctx, u.ID))

		_, err := users.GetByID(ctx, u.ID)
		assert.ErrorIs(t, err, repo.ErrNotFound)
		exists, err := users.EmailExists(ctx, u.Email)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.ErrorIs(t, users.SoftDelete(ctx, u.ID), repo.ErrNotFound)

		require.NoError(t, users.Create(ctx, newUser("ana@example.com")))
	})
}

func hashOf(s string) string { return auth.HashToken(s) }
