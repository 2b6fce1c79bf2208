package domain

import (
	"time"

	"github.com/google/uuid"
)

// Real-time event names pushed to clients.
const (
	EventMessageSent         = "message-sent"
	EventMessageStatusUpdate = "message-status-update"
	EventMessageEdited       = "message-edited"
	EventMessageDeleted      = "message-deleted"
	EventMessageReacted      = "message-reacted"
	EventMessageStarred      = "message-starred"

	EventChatPinned   = "chat-pinned"
	EventChatMuted    = "chat-muted"
	EventChatArchived = "chat-archived"
	EventChatCleared  = "chat-cleared"
	EventChatDeleted  = "chat-deleted"

	EventGroupCreated        = "group-created"
	EventGroupUpdated        = "group-updated"
	EventGroupMembersUpdated = "group-members-updated"
	EventGroupRoleUpdated    = "group-role-updated"
	EventGroupDeleted        = "group-deleted"

	EventUserOnline  = "user-online"
	EventUserOffline = "user-offline"
)

type MessageSentPayload struct {
	Message          *Message         `json:"message"`
	ConversationKind ConversationKind `json:"conversationKind,omitempty"`
	ClientTempID     string           `json:"clientTempId,omitempty"`
}

type MessageStatusPayload struct {
	MessageID      int64         `json:"messageId"`
	Status         MessageStatus `json:"status"`
	ConversationID uuid.UUID     `json:"conversationId"`
}

type MessageEditedPayload struct {
	MessageID      int64     `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	NewContent     string    `json:"newContent"`
	EditedAt       time.Time `json:"editedAt"`
}

type MessageDeletedPayload struct {
	MessageID      int64      `json:"messageId"`
	ConversationID uuid.UUID  `json:"conversationId"`
	DeleteType     DeleteType `json:"deleteType"`
	DeletedBy      *uuid.UUID `json:"deletedBy,omitempty"`
}

type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
	ReactionUpdated ReactionAction = "updated"
)

type MessageReactedPayload struct {
	MessageID      int64          `json:"messageId"`
	ConversationID uuid.UUID      `json:"conversationId"`
	Emoji          string         `json:"emoji"`
	UserID         uuid.UUID      `json:"userId"`
	Action         ReactionAction `json:"action"`
	Reactions      []Reaction     `json:"reactions"`
}

type MessageStarredPayload struct {
	MessageID      int64     `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	Starred        bool      `json:"starred"`
}

// ChatStatePayload carries a per-participant toggle to the owner's devices.
type ChatStatePayload struct {
	ConversationID uuid.UUID  `json:"conversationId"`
	IsPinned       *bool      `json:"isPinned,omitempty"`
	PinOrder       *int       `json:"pinOrder,omitempty"`
	IsMuted        *bool      `json:"isMuted,omitempty"`
	MutedUntil     *time.Time `json:"mutedUntil,omitempty"`
	IsArchived     *bool      `json:"isArchived,omitempty"`
	ClearedAt      *time.Time `json:"clearedAt,omitempty"`
	IsDeleted      *bool      `json:"isDeleted,omitempty"`
}

type GroupPayload struct {
	Conversation *Conversation `json:"conversation"`
	Members      []Participant `json:"members,omitempty"`
}

type GroupMembersPayload struct {
	ConversationID uuid.UUID     `json:"conversationId"`
	Added          []uuid.UUID   `json:"added,omitempty"`
	Removed        []uuid.UUID   `json:"removed,omitempty"`
	Left           *uuid.UUID    `json:"left,omitempty"`
	Promoted       *uuid.UUID    `json:"promoted,omitempty"`
	Members        []Participant `json:"members"`
}

type GroupRolePayload struct {
	ConversationID uuid.UUID       `json:"conversationId"`
	UserID         uuid.UUID       `json:"userId"`
	Role           ParticipantRole `json:"role"`
}

type GroupDeletedPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	DeletedBy      uuid.UUID `json:"deletedBy"`
}

type PresencePayload struct {
	UserID uuid.UUID `json:"userId"`
}
