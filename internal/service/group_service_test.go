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

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")

	details, err := env.groups.CreateGroup(ctx, CreateGroupInput{
		CreatorID: alice,
		Name:      "  launch  ",
		MemberIDs: []uuid.UUID{bob, carol, bob},
	})
	require.NoError(t, err)
	assert.Equal(t, "launch", *details.Conversation.Name)
	require.Len(t, details.Members, 3)
	assert.Equal(t, alice, details.Members[0].UserID)
	assert.Equal(t, domain.RoleAdmin, details.Members[0].Role)
	assert.Equal(t, domain.RoleMember, details.Members[1].Role)

	created := env.notifier.ofType(domain.EventGroupCreated)
	require.Len(t, created, 1)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob, carol}, created[0].Recipients)

	page, err := env.messages.ListMessages(ctx, ListMessagesInput{ConversationID: details.Conversation.ID, ViewerID: bob})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, domain.MessageSystem, page.Messages[0].Type)
}

func TestCreateGroupValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	_, err := env.groups.CreateGroup(ctx, CreateGroupInput{CreatorID: alice, Name: " ", MemberIDs: []uuid.UUID{bob}})
	assert.ErrorIs(t, err, ErrGroupNameRequired)

	_, err = env.groups.CreateGroup(ctx, CreateGroupInput{CreatorID: alice, Name: "solo", MemberIDs: []uuid.UUID{alice}})
	assert.ErrorIs(t, err, ErrGroupSize)

	_, err = env.groups.CreateGroup(ctx, CreateGroupInput{CreatorID: alice, Name: "ghost", MemberIDs: []uuid.UUID{uuid.New()}})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGroupMemberCap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.user(t, "admin")
	var members []uuid.UUID
	for i := range 19 {
		members = append(members, env.user(t, "member"+string(rune('a'+i))))
	}
	groupID := env.group(t, admin, members...)
	extra := env.user(t, "extra")

	_, err := env.groups.AddMembers(ctx, groupID, admin, []uuid.UUID{extra})
	assert.ErrorIs(t, err, ErrGroupFull)

	_, err = env.groups.RemoveMembers(ctx, groupID, admin, []uuid.UUID{members[0]})
	require.NoError(t, err)

	details, err := env.groups.AddMembers(ctx, groupID, admin, []uuid.UUID{extra})
	require.NoError(t, err)
	assert.Len(t, details.Members, domain.MaxGroupMembers)
}

func TestAddMembersRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")
	groupID := env.group(t, alice, bob)

	_, err := env.groups.AddMembers(context.Background(), groupID, bob, []uuid.UUID{carol})
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestAddMembersReactivatesFormerMember(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")
	groupID := env.group(t, alice, bob, carol)

	_, err := env.groups.LeaveGroup(ctx, groupID, carol)
	require.NoError(t, err)
	assert.False(t, env.participant(t, groupID, carol).IsActive())

	env.notifier.reset()
	_, err = env.groups.AddMembers(ctx, groupID, alice, []uuid.UUID{carol})
	require.NoError(t, err)
	p := env.participant(t, groupID, carol)
	assert.True(t, p.IsActive())
	assert.Equal(t, domain.RoleMember, p.Role)

	updates := env.notifier.ofType(domain.EventGroupMembersUpdated)
	require.Len(t, updates, 1)
	payload := updates[0].Payload.(domain.GroupMembersPayload)
	assert.Equal(t, []uuid.UUID{carol}, payload.Added)
}

func TestRemoveMembers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")
	outsider := env.user(t, "outsider")
	groupID := env.group(t, alice, bob, carol)

	_, err := env.groups.RemoveMembers(ctx, groupID, alice, []uuid.UUID{alice})
	assert.ErrorIs(t, err, ErrCannotRemoveSelf)

	_, err = env.groups.RemoveMembers(ctx, groupID, alice, []uuid.UUID{outsider})
	assert.ErrorIs(t, err, ErrMemberNotFound)

	env.notifier.reset()
	details, err := env.groups.RemoveMembers(ctx, groupID, alice, []uuid.UUID{bob})
	require.NoError(t, err)
	assert.Len(t, details.Members, 2)

	updates := env.notifier.ofType(domain.EventGroupMembersUpdated)
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].Recipients, bob)

	_, err = env.messages.Send(ctx, SendMessageInput{SenderID: bob, ConversationID: &groupID, Body: domain.TextBody{Text: "let me in"}})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestLastAdminLeavingPromotesLongestTenured(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")
	groupID := env.group(t, alice, bob, carol)

	details, err := env.groups.LeaveGroup(ctx, groupID, alice)
	require.NoError(t, err)
	require.Len(t, details.Members, 2)

	assert.Equal(t, domain.RoleAdmin, env.participant(t, groupID, bob).Role)
	assert.Equal(t, domain.RoleMember, env.participant(t, groupID, carol).Role)
	leaver := env.participant(t, groupID, alice)
	assert.NotNil(t, leaver.LeftAt)

	updates := env.notifier.ofType(domain.EventGroupMembersUpdated)
	require.Len(t, updates, 1)
	payload := updates[0].Payload.(domain.GroupMembersPayload)
	require.NotNil(t, payload.Promoted)
	assert.Equal(t, bob, *payload.Promoted)
	assert.Contains(t, updates[0].Recipients, alice)
}

func TestUpdateRoleKeepsAnAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	groupID := env.group(t, alice, bob)

	_, err := env.groups.UpdateRole(ctx, groupID, alice, alice, domain.RoleMember)
	assert.ErrorIs(t, err, ErrLastAdmin)

	p, err := env.groups.UpdateRole(ctx, groupID, alice, bob, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, p.Role)

	_, err = env.groups.UpdateRole(ctx, groupID, alice, alice, domain.RoleMember)
	require.NoError(t, err)

	_, err = env.groups.UpdateRole(ctx, groupID, bob, alice, domain.ParticipantRole("owner"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestUpdateInfo(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	groupID := env.group(t, alice, bob)

	name := "renamed"
	desc := "weekly sync"
	conv, err := env.groups.UpdateInfo(ctx, groupID, alice, UpdateGroupInput{Name: &name, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "renamed", *conv.Name)
	assert.Equal(t, "weekly sync", *conv.Description)
	assert.Len(t, env.notifier.ofType(domain.EventGroupUpdated), 1)

	_, err = env.groups.UpdateInfo(ctx, groupID, bob, UpdateGroupInput{Name: &name})
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestDeleteGroupReleasesMedia(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	groupID := env.group(t, alice, bob)

	_, err := env.messages.SendMedia(ctx, SendMediaInput{
		SenderID:       alice,
		ConversationID: &groupID,
		Kind:           domain.MessageImage,
		Data:           []byte("img"),
	})
	require.NoError(t, err)

	err = env.groups.DeleteGroup(ctx, groupID, bob)
	assert.ErrorIs(t, err, ErrNotAdmin)

	require.NoError(t, env.groups.DeleteGroup(ctx, groupID, alice))
	assert.Empty(t, env.blobs.stored)

	_, err = env.groups.Get(ctx, groupID, alice)
	assert.ErrorIs(t, err, ErrGroupNotFound)

	deleted := env.notifier.ofType(domain.EventGroupDeleted)
	require.Len(t, deleted, 1)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, deleted[0].Recipients)
}

func TestFormerMemberSeesHistoryOnlyUpToLeaving(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")
	groupID := env.group(t, alice, bob, carol)
	before := env.sendToConversation(t, alice, groupID, "before carol left")

	_, err := env.groups.LeaveGroup(ctx, groupID, carol)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	secret := env.sendToConversation(t, alice, groupID, "secret after carol left")
	env.notifier.reset()

	page, err := env.messages.ListMessages(ctx, ListMessagesInput{ConversationID: groupID, ViewerID: carol, MarkRead: true})
	require.NoError(t, err)
	ids := messageIDs(page.Messages)
	assert.Contains(t, ids, before.ID)
	assert.NotContains(t, ids, secret.ID)
	assert.Empty(t, env.notifier.ofType(domain.EventMessageStatusUpdate))

	found, err := env.messages.Search(ctx, groupID, "secret", carol)
	require.NoError(t, err)
	assert.Empty(t, found)
	found, err = env.messages.Search(ctx, groupID, "before", carol)
	require.NoError(t, err)
	assert.Equal(t, []int64{before.ID}, messageIDs(found))

	_, err = env.messages.UpdateStatus(ctx, secret.ID, domain.StatusRead, &carol)
	assert.ErrorIs(t, err, ErrNotParticipant)

	direct := env.sendText(t, carol, bob, "hi bob")
	_, err = env.messages.Forward(ctx, ForwardInput{
		MessageIDs:      []int64{secret.ID},
		ConversationIDs: []uuid.UUID{direct.ConversationID},
		RequesterID:     carol,
	})
	assert.ErrorIs(t, err, ErrNotParticipant)

	err = env.messages.Delete(ctx, secret.ID, domain.DeleteForMe, carol)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	stored, err := env.store.Messages().GetByID(ctx, secret.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
}
