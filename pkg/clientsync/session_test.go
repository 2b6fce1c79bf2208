package clientsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/domain"
)

func frame(t *testing.T, typ, requestID string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Envelope{Type: typ, RequestID: requestID, Payload: data})
	require.NoError(t, err)
	return raw
}

func TestSessionResolvesSendOnAck(t *testing.T) {
	me, peer := uuid.New(), uuid.New()
	s := NewSession(me)
	v := NewDirectView(me, peer, uuid.Nil)
	s.Open(v)

	tempID, env, err := s.SendText(v, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "send-message", env.Type)

	var cmd sendCommand
	require.NoError(t, json.Unmarshal(env.Payload, &cmd))
	require.NotNil(t, cmd.ReceiverID)
	assert.Equal(t, peer, *cmd.ReceiverID)
	assert.Equal(t, tempID, cmd.TempID)

	conv := uuid.New()
	persisted := serverMsg(42, conv, me, 0, "hello")
	require.NoError(t, s.Handle(frame(t, "ack", env.RequestID, map[string]any{"ok": true, "data": persisted})))

	assert.Equal(t, conv, v.ConversationID())
	assert.Equal(t, []string{"42"}, ids(v.Messages()))

	// the fan-out copy is ignored
	require.NoError(t, s.Handle(frame(t, domain.EventMessageSent, "", domain.MessageSentPayload{Message: &persisted, ClientTempID: tempID})))
	assert.Len(t, v.Messages(), 1)
}

func TestSessionMarksFailedOnErrorAck(t *testing.T) {
	me := uuid.New()
	s := NewSession(me)
	v := NewGroupView(me, uuid.New())
	s.Open(v)

	tempID, env, err := s.SendText(v, "hello", nil)
	require.NoError(t, err)
	require.NoError(t, s.Handle(frame(t, "ack", env.RequestID, map[string]any{
		"ok":    false,
		"error": map[string]any{"code": "BLOCKED", "message": "blocked"},
	})))

	require.True(t, v.HasPending(tempID))
	assert.Equal(t, StatusFailed, v.Messages()[0].Status)
}

func TestSessionDisconnectFailsInflight(t *testing.T) {
	me := uuid.New()
	s := NewSession(me)
	v := NewGroupView(me, uuid.New())
	s.Open(v)
	_, _, err := s.SendText(v, "hello", nil)
	require.NoError(t, err)

	s.Disconnected()
	assert.Equal(t, StatusFailed, v.Messages()[0].Status)
}

func TestSessionRoutesEventsToTheirView(t *testing.T) {
	me, alice, bob := uuid.New(), uuid.New(), uuid.New()
	convA, convB := uuid.New(), uuid.New()
	s := NewSession(me)
	va := NewDirectView(me, alice, convA)
	vb := NewDirectView(me, bob, convB)
	s.Open(va)
	s.Open(vb)

	fromAlice := serverMsg(1, convA, alice, 0, "hi from alice")
	require.NoError(t, s.Handle(frame(t, domain.EventMessageSent, "", domain.MessageSentPayload{Message: &fromAlice})))
	assert.Len(t, va.Messages(), 1)
	assert.Empty(t, vb.Messages())

	require.NoError(t, s.Handle(frame(t, domain.EventMessageEdited, "", domain.MessageEditedPayload{
		MessageID: 1, ConversationID: convA, NewContent: "edited", EditedAt: time.Now(),
	})))
	assert.Equal(t, "edited", va.Messages()[0].Content)

	require.NoError(t, s.Handle(frame(t, domain.EventMessageReacted, "", domain.MessageReactedPayload{
		MessageID: 1, ConversationID: convA, Reactions: []domain.Reaction{{UserID: me, Emoji: "👍"}},
	})))
	assert.Len(t, va.Messages()[0].Reactions, 1)

	require.NoError(t, s.Handle(frame(t, domain.EventMessageStatusUpdate, "", domain.MessageStatusPayload{
		MessageID: 1, ConversationID: convA, Status: domain.StatusRead,
	})))
	assert.Equal(t, domain.StatusRead, va.Messages()[0].Status)

	require.NoError(t, s.Handle(frame(t, domain.EventMessageDeleted, "", domain.MessageDeletedPayload{
		MessageID: 1, ConversationID: convA, DeleteType: domain.DeleteForEveryone,
	})))
	assert.True(t, va.Messages()[0].IsDeletedForEveryone)

	assert.Error(t, s.Handle([]byte("{not json")))
}

func TestSessionKeepsPeerGroupTrafficOutOfDirectView(t *testing.T) {
	me, peer := uuid.New(), uuid.New()
	group, direct := uuid.New(), uuid.New()
	s := NewSession(me)
	dv := NewDirectView(me, peer, uuid.Nil)
	gv := NewGroupView(me, group)
	s.Open(dv)
	s.Open(gv)

	inGroup := serverMsg(7, group, peer, 0, "group hello")
	require.NoError(t, s.Handle(frame(t, domain.EventMessageSent, "", domain.MessageSentPayload{
		Message: &inGroup, ConversationKind: domain.ConversationGroup,
	})))
	assert.Equal(t, []string{"7"}, ids(gv.Messages()))
	assert.Empty(t, dv.Messages())
	assert.Equal(t, uuid.Nil, dv.ConversationID())

	inDirect := serverMsg(8, direct, peer, time.Second, "direct hello")
	require.NoError(t, s.Handle(frame(t, domain.EventMessageSent, "", domain.MessageSentPayload{
		Message: &inDirect, ConversationKind: domain.ConversationDirect,
	})))
	assert.Equal(t, direct, dv.ConversationID())
	assert.Equal(t, []string{"8"}, ids(dv.Messages()))
	assert.Equal(t, []string{"7"}, ids(gv.Messages()))
}
