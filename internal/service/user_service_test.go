package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	assert.ErrorIs(t, env.users.Block(ctx, alice, alice), ErrCannotBlockSelf)
	assert.ErrorIs(t, env.users.Block(ctx, alice, uuid.New()), ErrUserNotFound)

	require.NoError(t, env.users.Block(ctx, alice, bob))
	require.NoError(t, env.users.Block(ctx, alice, bob))

	blocked, err := env.users.ListBlocked(ctx, alice)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, bob, blocked[0].ID)

	require.NoError(t, env.users.Unblock(ctx, alice, bob))
	blocked, err = env.users.ListBlocked(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, blocked)
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	u, err := env.users.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = env.users.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}
