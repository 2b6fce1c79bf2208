package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxMessageID is the largest id the messages table can hand out (SERIAL).
// Anything above it was minted by a client and has not been persisted yet.
const MaxMessageID int64 = math.MaxInt32

const (
	EditWindow     = 15 * time.Minute
	DeletionWindow = 60 * time.Hour
	MaxVideoLength = 90 * time.Second
	MaxForwardSet  = 5
	MaxContentLen  = 10000
)

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageAudio    MessageType = "audio"
	MessageDocument MessageType = "document"
	MessageLocation MessageType = "location"
	MessageCall     MessageType = "call"
	MessageSystem   MessageType = "system"
)

func (t MessageType) IsMedia() bool {
	switch t {
	case MessageImage, MessageVideo, MessageAudio, MessageDocument:
		return true
	}
	return false
}

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageLocation, MessageCall, MessageSystem:
		return true
	}
	return t.IsMedia()
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Advances reports whether moving from s to next is an upgrade.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.rank() > s.rank()
}

type DeleteType string

const (
	DeleteForMe       DeleteType = "forMe"
	DeleteForEveryone DeleteType = "forEveryone"
)

type EditRecord struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

type Reaction struct {
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type Star struct {
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	StarredAt time.Time `json:"starred_at"`
}

// QuotedMessage is a snapshot of a reply target taken at reply time. It is
// not updated when the original changes.
type QuotedMessage struct {
	ID       int64       `json:"id"`
	SenderID uuid.UUID   `json:"sender_id"`
	Type     MessageType `json:"type"`
	Content  string      `json:"content"`
	Caption  *string     `json:"caption,omitempty"`
}

type Message struct {
	ID                   int64          `json:"id"`
	ConversationID       uuid.UUID      `json:"conversation_id"`
	SenderID             uuid.UUID      `json:"sender_id"`
	Type                 MessageType    `json:"type"`
	Content              string         `json:"content"`
	Caption              *string        `json:"caption,omitempty"`
	Status               MessageStatus  `json:"status"`
	IsEdited             bool           `json:"is_edited"`
	EditedAt             *time.Time     `json:"edited_at,omitempty"`
	EditHistory          []EditRecord   `json:"edit_history,omitempty"`
	IsDeletedForEveryone bool           `json:"is_deleted_for_everyone"`
	DeletedForEveryoneAt *time.Time     `json:"deleted_for_everyone_at,omitempty"`
	DeletedBy            []uuid.UUID    `json:"-"`
	Reactions            []Reaction     `json:"reactions,omitempty"`
	StarredBy            []Star         `json:"starred_by,omitempty"`
	ReplyToMessageID     *int64         `json:"reply_to_message_id,omitempty"`
	QuotedMessage        *QuotedMessage `json:"quoted_message,omitempty"`
	IsForwarded          bool           `json:"is_forwarded"`
	OriginalMessageID    *int64         `json:"original_message_id,omitempty"`
	ForwardCount         int            `json:"forward_count"`
	CreatedAt            time.Time      `json:"created_at"`
	Media                *MediaFile     `json:"media,omitempty"`
}

func (m *Message) IsDeletedFor(userID uuid.UUID) bool {
	return slices.Contains(m.DeletedBy, userID)
}

// MarkDeletedFor adds userID to DeletedBy and reports whether it changed.
func (m *Message) MarkDeletedFor(userID uuid.UUID) bool {
	if m.IsDeletedFor(userID) {
		return false
	}
	m.DeletedBy = append(m.DeletedBy, userID)
	return true
}

func (m *Message) IsStarredBy(userID uuid.UUID) bool {
	for _, s := range m.StarredBy {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// Quote snapshots m for use as a reply target.
func (m *Message) Quote() *QuotedMessage {
	q := &QuotedMessage{
		ID:       m.ID,
		SenderID: m.SenderID,
		Type:     m.Type,
		Content:  m.Content,
	}
	if m.Caption != nil {
		c := *m.Caption
		q.Caption = &c
	}
	return q
}

// Body decodes the message payload into its typed variant.
func (m *Message) Body() (Body, error) {
	caption := ""
	if m.Caption != nil {
		caption = *m.Caption
	}
	switch m.Type {
	case MessageText:
		return TextBody{Text: m.Content}, nil
	case MessageImage, MessageVideo, MessageAudio, MessageDocument:
		b := MediaBody{Kind: m.Type, URL: m.Content, Caption: caption}
		if m.Media != nil {
			b.FileName = m.Media.FileName
		}
		return b, nil
	case MessageLocation:
		var b LocationBody
		if err := json.Unmarshal([]byte(m.Content), &b); err != nil {
			return nil, fmt.Errorf("decoding location body: %w", err)
		}
		return b, nil
	case MessageCall:
		var b CallBody
		if err := json.Unmarshal([]byte(m.Content), &b); err != nil {
			return nil, fmt.Errorf("decoding call body: %w", err)
		}
		return b, nil
	case MessageSystem:
		return SystemBody{Text: m.Content}, nil
	}
	return nil, fmt.Errorf("unknown message type %q", m.Type)
}

// NewMessage builds an unsaved message from a validated body.
func NewMessage(conversationID, senderID uuid.UUID, body Body) (*Message, error) {
	if body == nil {
		return nil, ErrEmptyBody
	}
	if err := body.Validate(); err != nil {
		return nil, err
	}
	content, caption, err := body.encode()
	if err != nil {
		return nil, err
	}
	msg := &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           body.Type(),
		Content:        content,
		Status:         StatusSent,
	}
	if caption != "" {
		msg.Caption = &caption
	}
	return msg, nil
}

var (
	ErrEmptyBody       = errors.New("message body is empty")
	ErrContentTooLong  = errors.New("message content is too long")
	ErrInvalidLocation = errors.New("location coordinates are out of range")
	ErrInvalidMedia    = errors.New("media message requires a url")
)

// Body is the type-specific payload of a message.
type Body interface {
	Type() MessageType
	Validate() error
	encode() (content, caption string, err error)
}

type TextBody struct {
	Text string `json:"text"`
}

func (TextBody) Type() MessageType { return MessageText }

func (b TextBody) Validate() error {
	if strings.TrimSpace(b.Text) == "" {
		return ErrEmptyBody
	}
	if len(b.Text) > MaxContentLen {
		return ErrContentTooLong
	}
	return nil
}

func (b TextBody) encode() (string, string, error) { return b.Text, "", nil }

type MediaBody struct {
	Kind     MessageType `json:"kind"`
	URL      string      `json:"url"`
	Caption  string      `json:"caption,omitempty"`
	FileName string      `json:"file_name,omitempty"`
}

func (b MediaBody) Type() MessageType { return b.Kind }

func (b MediaBody) Validate() error {
	if !b.Kind.IsMedia() {
		return fmt.Errorf("%q is not a media type", b.Kind)
	}
	if b.URL == "" {
		return ErrInvalidMedia
	}
	if len(b.Caption) > MaxContentLen {
		return ErrContentTooLong
	}
	return nil
}

func (b MediaBody) encode() (string, string, error) { return b.URL, b.Caption, nil }

type LocationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

func (LocationBody) Type() MessageType { return MessageLocation }

func (b LocationBody) Validate() error {
	if b.Latitude < -90 || b.Latitude > 90 || b.Longitude < -180 || b.Longitude > 180 {
		return ErrInvalidLocation
	}
	return nil
}

func (b LocationBody) encode() (string, string, error) {
	data, err := json.Marshal(b)
	return string(data), "", err
}

type CallOutcome string

const (
	CallCompleted CallOutcome = "completed"
	CallMissed    CallOutcome = "missed"
	CallDeclined  CallOutcome = "declined"
)

type CallBody struct {
	Video           bool        `json:"video"`
	Outcome         CallOutcome `json:"outcome"`
	DurationSeconds int         `json:"duration_seconds"`
}

func (CallBody) Type() MessageType { return MessageCall }

func (b CallBody) Validate() error {
	switch b.Outcome {
	case CallCompleted, CallMissed, CallDeclined:
	default:
		return fmt.Errorf("unknown call outcome %q", b.Outcome)
	}
	if b.DurationSeconds < 0 {
		return errors.New("call duration cannot be negative")
	}
	return nil
}

func (b CallBody) encode() (string, string, error) {
	data, err := json.Marshal(b)
	return string(data), "", err
}

type SystemBody struct {
	Text string `json:"text"`
}

func (SystemBody) Type() MessageType { return MessageSystem }

func (b SystemBody) Validate() error {
	if b.Text == "" {
		return ErrEmptyBody
	}
	return nil
}

func (b SystemBody) encode() (string, string, error) { return b.Text, "", nil }

type Direction string

const (
	DirectionOlder Direction = "older"
	DirectionNewer Direction = "newer"
)

type ListMessagesParams struct {
	ConversationID uuid.UUID
	ViewerID       uuid.UUID
	ClearedAt      *time.Time
	// LeftAt hides rows created after the viewer left the group.
	LeftAt *time.Time
	// Cursor is an exclusive message id bound; zero means "from the end".
	Cursor    int64
	Limit     int
	Direction Direction
}

type SearchMessagesParams struct {
	ConversationID uuid.UUID
	ViewerID       uuid.UUID
	ClearedAt      *time.Time
	LeftAt         *time.Time
	Query          string
	Limit          int
}
