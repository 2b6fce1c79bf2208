package ws

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeAddUser       = "add-user"
	EventTypeTypingStart   = "typing"
	EventTypeTypingStop    = "stop-typing"
	EventTypeSendMessage   = "send-message"
	EventTypeEditMessage   = "edit-message"
	EventTypeDeleteMessage = "delete-message"
	EventTypeReactMessage  = "react-message"
	EventTypeStatusUpdate  = domain.EventMessageStatusUpdate
	EventTypePing          = "ping"
)

// Call signaling is relayed verbatim in both directions.
const (
	EventTypeCallOffer        = "call-offer"
	EventTypeCallAnswer       = "call-answer"
	EventTypeCallIceCandidate = "call-ice-candidate"
	EventTypeCallEnd          = "call-end"
)

// Event types - Server → Client
const (
	EventTypeAck   = "ack"
	EventTypePong  = "pong"
	EventTypeError = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// MessageRef is a message id as sent by a client: a JSON number, a numeric
// string, or a "tmp-" id for a message that is not persisted yet.
type MessageRef string

func (r *MessageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = MessageRef(s)
		return nil
	}
	*r = MessageRef(data)
	return nil
}

func (r MessageRef) String() string { return string(r) }

// --- Client → Server payloads ---

type SendMessagePayload struct {
	RecipientID      *uuid.UUID           `json:"receiverId,omitempty"`
	ConversationID   *uuid.UUID           `json:"conversationId,omitempty"`
	Type             domain.MessageType   `json:"type"`
	Content          string               `json:"content,omitempty"`
	Location         *domain.LocationBody `json:"location,omitempty"`
	Call             *domain.CallBody     `json:"call,omitempty"`
	ReplyToMessageID *MessageRef          `json:"replyToMessageId,omitempty"`
	ClientTempID     string               `json:"tempId,omitempty"`
}

type EditMessagePayload struct {
	MessageID  MessageRef `json:"messageId"`
	NewContent string     `json:"newContent"`
}

type DeleteMessagePayload struct {
	MessageID  MessageRef        `json:"messageId"`
	DeleteType domain.DeleteType `json:"deleteType"`
}

type ReactMessagePayload struct {
	MessageID MessageRef `json:"messageId"`
	Emoji     string     `json:"emoji"`
}

type StatusUpdatePayload struct {
	MessageID MessageRef           `json:"messageId"`
	Status    domain.MessageStatus `json:"status"`
}

type TypingCommandPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

type CallSignalPayload struct {
	To             uuid.UUID       `json:"to"`
	ConversationID *uuid.UUID      `json:"conversationId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// --- Server → Client payloads ---

type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
}

type CallRelayPayload struct {
	From           uuid.UUID       `json:"from"`
	ConversationID *uuid.UUID      `json:"conversationId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

type AddUserPayload struct {
	UserID      uuid.UUID   `json:"userId"`
	OnlineUsers []uuid.UUID `json:"onlineUsers"`
}

type AckPayload struct {
	OK    bool          `json:"ok"`
	Data  any           `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, conversationID *uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}

// body converts the wire payload into a typed message body.
func (p SendMessagePayload) body() (domain.Body, error) {
	switch p.Type {
	case "", domain.MessageText:
		return domain.TextBody{Text: p.Content}, nil
	case domain.MessageLocation:
		if p.Location == nil {
			return nil, domain.ErrEmptyBody
		}
		return *p.Location, nil
	case domain.MessageCall:
		if p.Call == nil {
			return nil, domain.ErrEmptyBody
		}
		return *p.Call, nil
	}
	return nil, errUnsupportedType(p.Type)
}

type errUnsupportedType domain.MessageType

func (e errUnsupportedType) Error() string {
	return strconv.Quote(string(e)) + " messages cannot be sent over the socket"
}
