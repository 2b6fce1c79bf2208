package ws

import (
	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/service"
	"go.uber.org/zap"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
	log *zap.Logger
}

func NewHubNotifier(hub *Hub, log *zap.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, log: log}
}

func (n *HubNotifier) IsOnline(userID uuid.UUID) bool {
	return n.hub.IsOnline(userID)
}

func (n *HubNotifier) Notify(note service.Notification) {
	var convID *uuid.UUID
	if note.ConversationID != uuid.Nil {
		id := note.ConversationID
		convID = &id
	}
	evt, err := NewEvent(note.Type, convID, note.Payload)
	if err != nil {
		n.log.Error("ws_notifier_marshal_failed", zap.String("type", note.Type), zap.Error(err))
		return
	}
	n.hub.EmitToParticipants(note.Recipients, evt, nil)
}
