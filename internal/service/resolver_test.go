package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository"
)

func resolve(t *testing.T, env *testEnv, a, b uuid.UUID) *domain.Conversation {
	t.Helper()
	var conv *domain.Conversation
	err := env.store.WithTx(context.Background(), func(tx repository.Repos) error {
		var err error
		conv, err = env.resolver.ResolveDirect(context.Background(), tx, a, b)
		return err
	})
	require.NoError(t, err)
	return conv
}

func TestResolveDirectIsSymmetricAndIdempotent(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	first := resolve(t, env, alice, bob)
	second := resolve(t, env, bob, alice)
	third := resolve(t, env, alice, bob)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, domain.ConversationDirect, first.Kind)

	active, err := env.store.Participants().ListActive(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestResolveDirectSelfChatHasOneParticipant(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	conv := resolve(t, env, alice, alice)

	active, err := env.store.Participants().ListActive(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, alice, active[0].UserID)
}

func TestResolveDirectUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	err := env.store.WithTx(context.Background(), func(tx repository.Repos) error {
		_, err := env.resolver.ResolveDirect(context.Background(), tx, alice, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolveGroupRejectsDirect(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	conv := resolve(t, env, alice, bob)

	_, err := env.resolver.ResolveGroup(context.Background(), env.store, conv.ID)
	assert.ErrorIs(t, err, ErrGroupNotFound)

	_, err = env.resolver.ResolveAny(context.Background(), env.store, uuid.New())
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
