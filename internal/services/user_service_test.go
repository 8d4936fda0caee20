package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/forwardly/internal/apperr"
	"github.com/example/forwardly/internal/utils"
)

func TestUserService_CreateNormalizesPhone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.users.Create(ctx, "00212 600-000-000", Profile{FirstName: strPtr("  Youssef ")})
	require.NoError(t, err)
	assert.Equal(t, testPhone, user.Phone)
	assert.Equal(t, "Youssef", user.FirstName)
	assert.True(t, user.PhoneVerified)

	found, err := env.users.FindByPhone(ctx, "+212 600 000 000")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = env.users.Create(ctx, testPhone, Profile{})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = env.users.Create(ctx, "12", Profile{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUserService_FindMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.users.FindByPhone(ctx, "+33600000000")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.users.FindByPhone(ctx, "garbage")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.users.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserService_UpdateProfileEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUserWithEmail(t, testPhone, "old@example.com")

	require.NoError(t, env.db.Model(user).UpdateColumn("email_verified", true).Error)

	updated, err := env.users.UpdateProfile(ctx, user.ID, Profile{City: strPtr("Casablanca")})
	require.NoError(t, err)
	assert.Equal(t, "Casablanca", updated.City)
	assert.True(t, updated.EmailVerified, "unchanged email keeps verification")

	updated, err = env.users.UpdateProfile(ctx, user.ID, Profile{Email: strPtr("New@Example.com")})
	require.NoError(t, err)
	require.NotNil(t, updated.Email)
	assert.Equal(t, "new@example.com", *updated.Email)
	assert.False(t, updated.EmailVerified)

	_, err = env.users.UpdateProfile(ctx, user.ID, Profile{Email: strPtr("not an email")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	updated, err = env.users.UpdateProfile(ctx, user.ID, Profile{Email: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.Email)
	assert.Equal(t, "Casablanca", updated.City)

	_, err = env.users.UpdateProfile(ctx, uuid.New(), Profile{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserService_TouchLastLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, testPhone)
	assert.Nil(t, user.LastLoginAt)

	require.NoError(t, env.users.TouchLastLogin(ctx, user.ID))

	got, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, env.clock.Now().Equal(*got.LastLoginAt))
}

func TestUserService_ListSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.users.Create(ctx, "+212600000001", Profile{FirstName: strPtr("Salma"), LastName: strPtr("Benali")})
	require.NoError(t, err)
	_, err = env.users.Create(ctx, "+212600000002", Profile{FirstName: strPtr("Omar"), Email: strPtr("omar_b@example.com")})
	require.NoError(t, err)
	_, err = env.users.Create(ctx, "+33700000003", Profile{FirstName: strPtr("Claire")})
	require.NoError(t, err)

	page := utils.Pagination{Page: 1, Limit: 10}

	all, total, err := env.users.List(ctx, "", page)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	byName, total, err := env.users.List(ctx, "BENALI", page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Salma", byName[0].FirstName)

	byPhone, total, err := env.users.List(ctx, "+2126", page)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, byPhone, 2)

	// underscore is literal, not a wildcard
	byEmail, total, err := env.users.List(ctx, "omar_b", page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Omar", byEmail[0].FirstName)

	none, total, err := env.users.List(ctx, "l_a", page)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}
