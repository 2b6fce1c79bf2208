package service

import (
	"github.com/google/uuid"
)

// Notification is one event addressed to a set of users.
type Notification struct {
	Type string
	// ConversationID is uuid.Nil for events not scoped to a conversation.
	ConversationID uuid.UUID
	Recipients     []uuid.UUID
	Payload        any
}

// Notifier delivers real-time events to connected clients. Services only
// call it after the surrounding transaction committed.
type Notifier interface {
	IsOnline(userID uuid.UUID) bool
	Notify(n Notification)
}

// notifierRef is embedded by services that emit events.
type notifierRef struct {
	notifier Notifier
}

// SetNotifier sets the real-time notifier (optional dependency).
func (r *notifierRef) SetNotifier(n Notifier) {
	r.notifier = n
}

func (r *notifierRef) notify(n Notification) {
	if r.notifier == nil || len(n.Recipients) == 0 {
		return
	}
	r.notifier.Notify(n)
}

func (r *notifierRef) isOnline(userID uuid.UUID) bool {
	return r.notifier != nil && r.notifier.IsOnline(userID)
}
