package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/metrics"
	"go.uber.org/zap"
)

// Hub tracks live connections per user and fans events out to them. It
// knows nothing about conversations; callers pass recipient lists.
type Hub struct {
	// clients maps userID → open connections. The set size is the user's
	// connection count.
	clients map[uuid.UUID]map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		log:        log,
	}
}

// Run starts the Hub's main event loop. Call this in a goroutine; it
// returns when ctx is cancelled, closing every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			h.mu.Lock()
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
					metrics.WSConnections.Dec()
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

// Register hands a new connection to the Run loop.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	count := len(conns)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	h.log.Debug("ws_connected", zap.String("user_id", c.userID.String()), zap.Int("connections", count))

	if count == 1 {
		h.broadcastPresence(c.userID, domain.EventUserOnline)
	}
}

func (h *Hub) remove(c *Client) {
	if last, ok := h.detach(c); ok {
		h.log.Debug("ws_disconnected", zap.String("user_id", c.userID.String()))
		if last {
			h.broadcastPresence(c.userID, domain.EventUserOffline)
		}
	}
}

// detach removes c and closes its send channel. ok is false when c was
// already gone; last is true when it was the user's final connection.
func (h *Hub) detach(c *Client) (last, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, found := h.clients[c.userID]
	if !found {
		return false, false
	}
	if _, found := conns[c]; !found {
		return false, false
	}
	delete(conns, c)
	close(c.send)
	metrics.WSConnections.Dec()
	if len(conns) == 0 {
		delete(h.clients, c.userID)
		return true, true
	}
	return false, true
}

// IsOnline reports whether userID has at least one open connection.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) OnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		out = append(out, id)
	}
	return out
}

// EmitToUser sends an event to every connection of userID.
func (h *Hub) EmitToUser(userID uuid.UUID, event *Event) {
	h.EmitToParticipants([]uuid.UUID{userID}, event, nil)
}

// EmitToParticipants sends an event to every connection of every listed
// user, optionally skipping one user.
func (h *Hub) EmitToParticipants(userIDs []uuid.UUID, event *Event, exclude *uuid.UUID) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("ws_marshal_failed", zap.String("type", event.Type), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || (exclude != nil && id == *exclude) {
			continue
		}
		seen[id] = struct{}{}
		for c := range h.clients[id] {
			if !h.deliver(c, data) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	metrics.RelayEvents.WithLabelValues(event.Type).Inc()
	h.dropSlow(slow)
}

// broadcastPresence tells every other connected user that userID came
// online or went offline.
func (h *Hub) broadcastPresence(userID uuid.UUID, eventType string) {
	evt, err := NewEvent(eventType, nil, domain.PresencePayload{UserID: userID})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}

	var slow []*Client
	h.mu.RLock()
	for id, conns := range h.clients {
		if id == userID {
			continue
		}
		for c := range conns {
			if !h.deliver(c, data) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	metrics.RelayEvents.WithLabelValues(eventType).Inc()
	h.dropSlow(slow)
}

// deliver must be called with h.mu held. It never blocks.
func (h *Hub) deliver(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// dropSlow disconnects clients whose buffer was full. Other recipients
// are unaffected.
func (h *Hub) dropSlow(slow []*Client) {
	for _, c := range slow {
		last, ok := h.detach(c)
		if !ok {
			continue
		}
		metrics.RelayDropped.Inc()
		h.log.Warn("ws_client_dropped", zap.String("user_id", c.userID.String()))
		if last {
			h.broadcastPresence(c.userID, domain.EventUserOffline)
		}
	}
}

// emitToClient replies to a single connection, e.g. an ack. It is a no-op
// once the connection has been detached.
func (h *Hub) emitToClient(c *Client, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("ws_marshal_failed", zap.String("type", event.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	_, live := h.clients[c.userID][c]
	ok := !live || h.deliver(c, data)
	h.mu.RUnlock()

	if !ok {
		h.dropSlow([]*Client{c})
	}
}
