package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/service"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type fakeMessages struct {
	sent    []service.SendMessageInput
	edited  []int64
	deleted []domain.DeleteType
	err     error
}

func (f *fakeMessages) Send(_ context.Context, input service.SendMessageInput) (*domain.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, input)
	return &domain.Message{ID: int64(len(f.sent)), SenderID: input.SenderID, Type: input.Body.Type()}, nil
}

func (f *fakeMessages) Edit(_ context.Context, id int64, content string, _ uuid.UUID) (*domain.Message, error) {
	f.edited = append(f.edited, id)
	return &domain.Message{ID: id, Content: content}, nil
}

func (f *fakeMessages) Delete(_ context.Context, _ int64, deleteType domain.DeleteType, _ uuid.UUID) error {
	f.deleted = append(f.deleted, deleteType)
	return nil
}

func (f *fakeMessages) React(_ context.Context, id int64, emoji string, _ uuid.UUID) (*service.ReactResult, error) {
	return &service.ReactResult{MessageID: id, Emoji: emoji, Action: domain.ReactionAdded}, nil
}

func (f *fakeMessages) UpdateStatus(_ context.Context, id int64, status domain.MessageStatus, _ *uuid.UUID) (*domain.Message, error) {
	return &domain.Message{ID: id, Status: status}, nil
}

type fakeAccess struct {
	peers   []uuid.UUID
	blocked bool
}

func (f *fakeAccess) Peers(context.Context, uuid.UUID, uuid.UUID) ([]uuid.UUID, error) {
	return f.peers, nil
}

func (f *fakeAccess) CanSignal(context.Context, uuid.UUID, uuid.UUID) error {
	if f.blocked {
		return service.ErrBlocked
	}
	return nil
}

func command(t *testing.T, eventType, requestID string, payload any) *Event {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Event{Type: eventType, RequestID: requestID, Payload: data}
}

func ack(t *testing.T, c *Client) (Event, AckPayload) {
	t.Helper()
	evt := next(t, c, EventTypeAck)
	var p AckPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	return evt, p
}

func TestSendMessageCommandAcks(t *testing.T) {
	hub := startHub(t)
	msgs := &fakeMessages{}
	alice, bob := uuid.New(), uuid.New()
	c := connect(t, hub, alice, Deps{Messages: msgs, Access: &fakeAccess{}})

	c.dispatch(context.Background(), command(t, EventTypeSendMessage, "req-1", map[string]any{
		"receiverId":       bob,
		"content":          "hello",
		"tempId":           "tmp-1",
		"replyToMessageId": "7",
	}))

	evt, p := ack(t, c)
	assert.Equal(t, "req-1", evt.RequestID)
	assert.True(t, p.OK)
	require.Len(t, msgs.sent, 1)
	assert.Equal(t, domain.TextBody{Text: "hello"}, msgs.sent[0].Body)
	assert.Equal(t, "tmp-1", msgs.sent[0].ClientTempID)
	assert.Equal(t, int64(7), *msgs.sent[0].ReplyToMessageID)
	assert.Equal(t, bob, *msgs.sent[0].RecipientID)
}

func TestTempIDIsRetryable(t *testing.T) {
	hub := startHub(t)
	msgs := &fakeMessages{}
	c := connect(t, hub, uuid.New(), Deps{Messages: msgs, Access: &fakeAccess{}})

	c.dispatch(context.Background(), command(t, EventTypeEditMessage, "req-2", map[string]any{
		"messageId":  "tmp-1712",
		"newContent": "fixed",
	}))

	_, p := ack(t, c)
	assert.False(t, p.OK)
	require.NotNil(t, p.Error)
	assert.Equal(t, "MESSAGE_NOT_PERSISTED", p.Error.Code)
	assert.True(t, p.Error.Retryable)
	assert.Empty(t, msgs.edited)

	c.dispatch(context.Background(), command(t, EventTypeEditMessage, "req-3", map[string]any{
		"messageId":  42,
		"newContent": "fixed",
	}))
	_, p = ack(t, c)
	assert.True(t, p.OK)
	assert.Equal(t, []int64{42}, msgs.edited)
}

func TestFailureWithoutRequestIDSendsError(t *testing.T) {
	hub := startHub(t)
	c := connect(t, hub, uuid.New(), Deps{Messages: &fakeMessages{}, Access: &fakeAccess{}})

	c.dispatch(context.Background(), &Event{Type: "teleport"})

	evt := next(t, c, EventTypeError)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, "UNKNOWN_EVENT", p.Code)
}

func TestServiceErrorsAreMapped(t *testing.T) {
	hub := startHub(t)
	msgs := &fakeMessages{err: service.ErrBlocked}
	c := connect(t, hub, uuid.New(), Deps{Messages: msgs, Access: &fakeAccess{}})
	peer := uuid.New()

	c.dispatch(context.Background(), command(t, EventTypeSendMessage, "req", map[string]any{
		"receiverId": peer,
		"content":    "hi",
	}))
	_, p := ack(t, c)
	assert.Equal(t, "BLOCKED", p.Error.Code)
	assert.False(t, p.Error.Retryable)
}

func TestRateLimitedCommands(t *testing.T) {
	hub := startHub(t)
	msgs := &fakeMessages{}
	c := connect(t, hub, uuid.New(), Deps{Messages: msgs, Access: &fakeAccess{}})
	c.limiter = rate.NewLimiter(0, 1)

	del := map[string]any{"messageId": 1, "deleteType": "forMe"}
	c.dispatch(context.Background(), command(t, EventTypeDeleteMessage, "a", del))
	c.dispatch(context.Background(), command(t, EventTypeDeleteMessage, "b", del))

	_, first := ack(t, c)
	assert.True(t, first.OK)
	evt, second := ack(t, c)
	assert.Equal(t, "b", evt.RequestID)
	assert.Equal(t, "RATE_LIMITED", second.Error.Code)
	assert.Len(t, msgs.deleted, 1)
}

func TestTypingIsForwardedToPeers(t *testing.T) {
	hub := startHub(t)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	access := &fakeAccess{peers: []uuid.UUID{bob}}
	a := connect(t, hub, alice, Deps{Messages: &fakeMessages{}, Access: access})
	b := connect(t, hub, bob, Deps{})
	cl := connect(t, hub, carol, Deps{})
	convID := uuid.New()

	a.dispatch(context.Background(), command(t, EventTypeTypingStart, "", map[string]any{"conversationId": convID}))

	evt := next(t, b, EventTypeTypingStart)
	var p TypingPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, alice, p.UserID)
	assert.Equal(t, convID, p.ConversationID)
	for _, e := range drain(cl) {
		assert.NotEqual(t, EventTypeTypingStart, e.Type)
	}
}

func TestCallSignalingRelay(t *testing.T) {
	hub := startHub(t)
	alice, bob := uuid.New(), uuid.New()
	access := &fakeAccess{}
	a := connect(t, hub, alice, Deps{Messages: &fakeMessages{}, Access: access})
	b := connect(t, hub, bob, Deps{})

	offer := map[string]any{"to": bob, "data": map[string]string{"sdp": "v=0"}}
	a.dispatch(context.Background(), command(t, EventTypeCallOffer, "call-1", offer))

	evt := next(t, b, EventTypeCallOffer)
	var p CallRelayPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, alice, p.From)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(p.Data))
	_, ok := ack(t, a)
	assert.True(t, ok.OK)

	access.blocked = true
	a.dispatch(context.Background(), command(t, EventTypeCallOffer, "call-2", offer))
	_, denied := ack(t, a)
	assert.Equal(t, "BLOCKED", denied.Error.Code)
}

func TestAddUserReturnsOnlineUsers(t *testing.T) {
	hub := startHub(t)
	alice, bob := uuid.New(), uuid.New()
	a := connect(t, hub, alice, Deps{})
	connect(t, hub, bob, Deps{})

	a.dispatch(context.Background(), &Event{Type: EventTypeAddUser, RequestID: "hello"})

	evt, p := ack(t, a)
	assert.Equal(t, "hello", evt.RequestID)
	data, err := json.Marshal(p.Data)
	require.NoError(t, err)
	var payload AddUserPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, alice, payload.UserID)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, payload.OnlineUsers)
}

func TestSendMessageBodies(t *testing.T) {
	body, err := SendMessagePayload{Type: domain.MessageLocation, Location: &domain.LocationBody{Latitude: 1, Longitude: 2}}.body()
	require.NoError(t, err)
	assert.Equal(t, domain.MessageLocation, body.Type())

	_, err = SendMessagePayload{Type: domain.MessageImage}.body()
	assert.Error(t, err)

	_, err = SendMessagePayload{Type: domain.MessageCall}.body()
	assert.ErrorIs(t, err, domain.ErrEmptyBody)
}
