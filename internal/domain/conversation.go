package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

const (
	MaxGroupMembers = 20
	MinGroupMembers = 2
	MaxPinned       = 3
)

type Conversation struct {
	ID            uuid.UUID        `json:"id"`
	Kind          ConversationKind `json:"kind"`
	DirectKey     *string          `json:"-"`
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	IconURL       *string          `json:"icon_url,omitempty"`
	CreatorID     *uuid.UUID       `json:"creator_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	LastMessageID *int64           `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time       `json:"last_message_at,omitempty"`
}

func (c *Conversation) IsGroup() bool {
	return c.Kind == ConversationGroup
}

// DirectKey returns the canonical key of the unordered pair {a, b}. A
// self-chat yields "a:a".
func DirectKey(a, b uuid.UUID) string {
	s1, s2 := a.String(), b.String()
	if s1 > s2 {
		s1, s2 = s2, s1
	}
	return s1 + ":" + s2
}

type ParticipantRole string

const (
	RoleAdmin  ParticipantRole = "admin"
	RoleMember ParticipantRole = "member"
)

// Participant is the per-user view of a conversation.
type Participant struct {
	ConversationID uuid.UUID       `json:"conversation_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Role           ParticipantRole `json:"role,omitempty"`
	IsPinned       bool            `json:"is_pinned"`
	PinOrder       int             `json:"pin_order"`
	IsMuted        bool            `json:"is_muted"`
	MutedUntil     *time.Time      `json:"muted_until,omitempty"`
	IsArchived     bool            `json:"is_archived"`
	IsDeleted      bool            `json:"is_deleted"`
	ClearedAt      *time.Time      `json:"cleared_at,omitempty"`
	JoinedAt       time.Time       `json:"joined_at"`
	LeftAt         *time.Time      `json:"left_at,omitempty"`
	UnreadCount    int             `json:"unread_count"`
	// Joined fields
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

func (p *Participant) IsActive() bool {
	return p != nil && p.LeftAt == nil
}

func (p *Participant) IsAdmin() bool {
	return p.IsActive() && p.Role == RoleAdmin
}

// CanSee reports whether a message created at t is visible to this
// participant given their clear marker.
func (p *Participant) CanSee(t time.Time) bool {
	return p.ClearedAt == nil || t.After(*p.ClearedAt)
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	State       Participant   `json:"state"`
	LastMessage *Message      `json:"last_message,omitempty"`
	Peer        *User         `json:"peer,omitempty"`
	Members     []Participant `json:"members,omitempty"`
}

type ListConversationsParams struct {
	UserID uuid.UUID
	Query  string
	Offset int
	Limit  int
}
