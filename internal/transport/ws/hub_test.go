package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/service"
	"go.uber.org/zap"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, userID uuid.UUID, deps Deps) *Client {
	t.Helper()
	c := NewClient(hub, nil, userID, deps, nil, zap.NewNop())
	require.True(t, hub.Register(c))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		_, ok := hub.clients[userID][c]
		return ok
	}, time.Second, time.Millisecond)
	return c
}

func disconnect(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.Unregister(c)
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		_, ok := hub.clients[c.userID][c]
		return !ok
	}, time.Second, time.Millisecond)
}

// next returns the next event of the given type, skipping others.
func next(t *testing.T, c *Client, eventType string) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case data, ok := <-c.send:
			require.True(t, ok, "send channel closed")
			var evt Event
			require.NoError(t, json.Unmarshal(data, &evt))
			if evt.Type == eventType {
				return evt
			}
		case <-deadline:
			t.Fatalf("no %s event", eventType)
		}
	}
}

func drain(c *Client) []Event {
	var out []Event
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var evt Event
			if json.Unmarshal(data, &evt) == nil {
				out = append(out, evt)
			}
		default:
			return out
		}
	}
}

func TestEmitReachesEveryConnection(t *testing.T) {
	hub := startHub(t)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	a1 := connect(t, hub, alice, Deps{})
	a2 := connect(t, hub, alice, Deps{})
	b := connect(t, hub, bob, Deps{})
	c := connect(t, hub, carol, Deps{})
	for _, cl := range []*Client{a1, a2, b, c} {
		drain(cl)
	}

	evt, err := NewEvent(domain.EventMessageSent, nil, map[string]string{"hello": "world"})
	require.NoError(t, err)
	hub.EmitToParticipants([]uuid.UUID{alice, bob, alice, carol}, evt, &carol)

	assert.Len(t, drain(a1), 1)
	assert.Len(t, drain(a2), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(c))
}

func TestPresenceOnFirstAndLastConnection(t *testing.T) {
	hub := startHub(t)
	alice, bob := uuid.New(), uuid.New()
	a := connect(t, hub, alice, Deps{})

	b1 := connect(t, hub, bob, Deps{})
	online := next(t, a, domain.EventUserOnline)
	var p domain.PresencePayload
	require.NoError(t, json.Unmarshal(online.Payload, &p))
	assert.Equal(t, bob, p.UserID)
	assert.True(t, hub.IsOnline(bob))

	b2 := connect(t, hub, bob, Deps{})
	disconnect(t, hub, b1)
	assert.True(t, hub.IsOnline(bob))
	for _, evt := range drain(a) {
		assert.NotEqual(t, domain.EventUserOffline, evt.Type)
		assert.NotEqual(t, domain.EventUserOnline, evt.Type)
	}

	disconnect(t, hub, b2)
	assert.False(t, hub.IsOnline(bob))
	offline := next(t, a, domain.EventUserOffline)
	require.NoError(t, json.Unmarshal(offline.Payload, &p))
	assert.Equal(t, bob, p.UserID)

	assert.ElementsMatch(t, []uuid.UUID{alice}, hub.OnlineUsers())
}

func TestSlowConnectionIsDroppedAlone(t *testing.T) {
	hub := startHub(t)
	alice, bob := uuid.New(), uuid.New()
	fast := connect(t, hub, alice, Deps{})

	slow := NewClient(hub, nil, bob, Deps{}, nil, zap.NewNop())
	slow.send = make(chan []byte, 1)
	require.True(t, hub.Register(slow))
	require.Eventually(t, func() bool { return hub.IsOnline(bob) }, time.Second, time.Millisecond)
	drain(fast)

	for range 3 {
		evt, err := NewEvent(domain.EventMessageSent, nil, "x")
		require.NoError(t, err)
		hub.EmitToParticipants([]uuid.UUID{alice, bob}, evt, nil)
	}

	assert.False(t, hub.IsOnline(bob))
	assert.True(t, hub.IsOnline(alice))

	var got int
	for _, evt := range drain(fast) {
		if evt.Type == domain.EventMessageSent {
			got++
		}
	}
	assert.Equal(t, 3, got)

	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)
}

func TestRunStopClosesConnections(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := connect(t, hub, uuid.New(), Deps{})
	cancel()

	select {
	case <-hub.stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, open := <-c.send
	assert.False(t, open)
	assert.False(t, hub.Register(NewClient(hub, nil, uuid.New(), Deps{}, nil, zap.NewNop())))
}

func TestHubNotifier(t *testing.T) {
	hub := startHub(t)
	alice := uuid.New()
	a := connect(t, hub, alice, Deps{})
	n := NewHubNotifier(hub, zap.NewNop())
	convID := uuid.New()

	assert.True(t, n.IsOnline(alice))
	assert.False(t, n.IsOnline(uuid.New()))

	n.Notify(service.Notification{
		Type:           domain.EventMessageDeleted,
		ConversationID: convID,
		Recipients:     []uuid.UUID{alice},
		Payload:        domain.MessageDeletedPayload{MessageID: 4, ConversationID: convID, DeleteType: domain.DeleteForEveryone},
	})

	evt := next(t, a, domain.EventMessageDeleted)
	require.NotNil(t, evt.ConversationID)
	assert.Equal(t, convID, *evt.ConversationID)

	n.Notify(service.Notification{Type: domain.EventGroupUpdated, Recipients: []uuid.UUID{alice}, Payload: struct{}{}})
	evt = next(t, a, domain.EventGroupUpdated)
	assert.Nil(t, evt.ConversationID)
}
