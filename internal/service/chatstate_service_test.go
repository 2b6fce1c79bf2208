package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/domain"
)

func TestPinLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	me := env.user(t, "me")
	var convs []uuid.UUID
	for _, name := range []string{"a", "b", "c", "d"} {
		peer := env.user(t, name)
		convs = append(convs, env.sendText(t, peer, me, "hi").ConversationID)
	}

	for _, id := range convs[:3] {
		_, err := env.chatState.Pin(ctx, id, me)
		require.NoError(t, err)
	}
	_, err := env.chatState.Pin(ctx, convs[3], me)
	assert.ErrorIs(t, err, ErrPinLimit)

	again, err := env.chatState.Pin(ctx, convs[0], me)
	require.NoError(t, err)
	assert.True(t, again.IsPinned)

	list, err := env.chatState.ListConversations(ctx, me, "", 0, "")
	require.NoError(t, err)
	require.Len(t, list.Conversations, 4)
	assert.Equal(t, convs[2], list.Conversations[0].ID)
	assert.Equal(t, convs[1], list.Conversations[1].ID)
	assert.Equal(t, convs[0], list.Conversations[2].ID)
	assert.Equal(t, convs[3], list.Conversations[3].ID)

	_, err = env.chatState.Unpin(ctx, convs[1], me)
	require.NoError(t, err)
	_, err = env.chatState.Pin(ctx, convs[3], me)
	require.NoError(t, err)

	events := env.notifier.ofType(domain.EventChatPinned)
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, []uuid.UUID{me}, ev.Recipients)
	}
}

func TestMuteRequiresFutureAndExpires(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	convID := env.sendText(t, alice, bob, "hi").ConversationID

	_, err := env.chatState.Mute(ctx, convID, bob, time.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, ErrMuteInPast)

	p, err := env.chatState.Mute(ctx, convID, bob, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, p.IsMuted)

	n, err := env.chatState.ExpireMutes(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.chatState.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = env.chatState.ExpireMutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, env.participant(t, convID, bob).IsMuted)
}

func TestArchiveAndDeleteForMe(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	convID := env.sendText(t, alice, bob, "hi").ConversationID

	p, err := env.chatState.Archive(ctx, convID, bob)
	require.NoError(t, err)
	assert.True(t, p.IsArchived)
	p, err = env.chatState.Unarchive(ctx, convID, bob)
	require.NoError(t, err)
	assert.False(t, p.IsArchived)

	_, err = env.chatState.DeleteForMe(ctx, convID, bob)
	require.NoError(t, err)
	list, err := env.chatState.ListConversations(ctx, bob, "", 0, "")
	require.NoError(t, err)
	assert.Empty(t, list.Conversations)

	list, err = env.chatState.ListConversations(ctx, alice, "", 0, "")
	require.NoError(t, err)
	assert.Len(t, list.Conversations, 1)

	env.sendText(t, alice, bob, "are you there?")
	list, err = env.chatState.ListConversations(ctx, bob, "", 0, "")
	require.NoError(t, err)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, 1, list.Conversations[0].State.UnreadCount)
}

func TestClearHidesLastMessage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	convID := env.sendText(t, alice, bob, "hi").ConversationID

	p, err := env.chatState.Clear(ctx, convID, bob)
	require.NoError(t, err)
	assert.NotNil(t, p.ClearedAt)
	assert.Zero(t, p.UnreadCount)

	list, err := env.chatState.ListConversations(ctx, bob, "", 0, "")
	require.NoError(t, err)
	require.Len(t, list.Conversations, 1)
	assert.Nil(t, list.Conversations[0].LastMessage)
}

func TestChatStateRequiresParticipant(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	mallory := env.user(t, "mallory")
	convID := env.sendText(t, alice, bob, "hi").ConversationID

	_, err := env.chatState.Archive(context.Background(), convID, mallory)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestListConversationsPaginatesAndSearches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	me := env.user(t, "me")
	for _, name := range []string{"anna", "andrew", "zoe"} {
		env.sendText(t, me, env.user(t, name), "hello "+name)
	}

	page, err := env.chatState.ListConversations(ctx, me, "", 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Conversations, 2)
	require.True(t, page.HasMore)

	rest, err := env.chatState.ListConversations(ctx, me, page.NextCursor, 2, "")
	require.NoError(t, err)
	assert.Len(t, rest.Conversations, 1)
	assert.False(t, rest.HasMore)

	found, err := env.chatState.ListConversations(ctx, me, "", 0, "AN")
	require.NoError(t, err)
	assert.Len(t, found.Conversations, 2)

	_, err = env.chatState.ListConversations(ctx, me, "%%%", 0, "")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestOpenDirectMatchesSend(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	conv, err := env.chatState.OpenDirect(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationDirect, conv.Kind)

	msg := env.sendText(t, bob, alice, "hi")
	assert.Equal(t, conv.ID, msg.ConversationID)

	_, err = env.chatState.OpenDirect(ctx, alice, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}
