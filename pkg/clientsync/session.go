package clientsync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// Envelope is the websocket frame exchanged with the server.
type Envelope struct {
	Type           string          `json:"type"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

type sendCommand struct {
	ReceiverID       *uuid.UUID         `json:"receiverId,omitempty"`
	ConversationID   *uuid.UUID         `json:"conversationId,omitempty"`
	Type             domain.MessageType `json:"type"`
	Content          string             `json:"content,omitempty"`
	ReplyToMessageID *int64             `json:"replyToMessageId,omitempty"`
	TempID           string             `json:"tempId"`
}

type ackPayload struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error,omitempty"`
}

type inflight struct {
	view   *View
	tempID string
}

// Session routes server events to the open views of one signed-in user.
type Session struct {
	self uuid.UUID

	mu          sync.Mutex
	views       map[*View]struct{}
	inflight    map[string]inflight
	nextRequest int64
}

func NewSession(self uuid.UUID) *Session {
	return &Session{
		self:     self,
		views:    make(map[*View]struct{}),
		inflight: make(map[string]inflight),
	}
}

func (s *Session) Open(v *View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[v] = struct{}{}
}

func (s *Session) Close(v *View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, v)
	for id, f := range s.inflight {
		if f.view == v {
			delete(s.inflight, id)
		}
	}
}

// SendText adds an optimistic text entry to v and returns the command frame
// to write to the socket.
func (s *Session) SendText(v *View, text string, replyTo *int64) (string, Envelope, error) {
	tempID := v.AddPending(Entry{Message: domain.Message{Type: domain.MessageText, Content: text, ReplyToMessageID: replyTo}})

	cmd := sendCommand{Type: domain.MessageText, Content: text, ReplyToMessageID: replyTo, TempID: tempID}
	if convID := v.ConversationID(); convID != uuid.Nil {
		cmd.ConversationID = &convID
	} else {
		peer := v.Peer()
		cmd.ReceiverID = &peer
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		v.MarkFailed(tempID)
		return tempID, Envelope{}, err
	}

	s.mu.Lock()
	s.nextRequest++
	requestID := "req-" + strconv.FormatInt(s.nextRequest, 10)
	s.inflight[requestID] = inflight{view: v, tempID: tempID}
	s.mu.Unlock()

	return tempID, Envelope{
		Type:      "send-message",
		RequestID: requestID,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}, nil
}

// Disconnected fails every send still waiting for an acknowledgement.
func (s *Session) Disconnected() {
	s.mu.Lock()
	pending := s.inflight
	s.inflight = make(map[string]inflight)
	s.mu.Unlock()

	for _, f := range pending {
		f.view.MarkFailed(f.tempID)
	}
}

// Handle applies one server frame.
func (s *Session) Handle(raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}

	switch env.Type {
	case "ack":
		return s.handleAck(env)

	case domain.EventMessageSent:
		var p domain.MessageSentPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		if p.Message == nil {
			return nil
		}
		views := s.openViews()
		accepted := false
		for _, v := range views {
			if v.ApplyCreated(*p.Message, p.ClientTempID) {
				accepted = true
			}
		}
		if accepted {
			return nil
		}
		for _, v := range views {
			if v.AdoptDirect(*p.Message, p.ConversationKind) {
				break
			}
		}

	case domain.EventMessageStatusUpdate:
		var p domain.MessageStatusPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		s.forConversation(p.ConversationID, func(v *View) {
			v.ApplyStatus(ref(p.MessageID), p.Status)
		})

	case domain.EventMessageEdited:
		var p domain.MessageEditedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		s.forConversation(p.ConversationID, func(v *View) {
			v.ApplyEdit(ref(p.MessageID), p.NewContent, p.EditedAt)
		})

	case domain.EventMessageDeleted:
		var p domain.MessageDeletedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		s.forConversation(p.ConversationID, func(v *View) {
			v.ApplyDelete(ref(p.MessageID), p.DeleteType)
		})

	case domain.EventMessageReacted:
		var p domain.MessageReactedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		s.forConversation(p.ConversationID, func(v *View) {
			v.ApplyReaction(ref(p.MessageID), p.Reactions)
		})
	}
	return nil
}

func (s *Session) handleAck(env Envelope) error {
	s.mu.Lock()
	f, ok := s.inflight[env.RequestID]
	delete(s.inflight, env.RequestID)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	var ack ackPayload
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		f.view.MarkFailed(f.tempID)
		return fmt.Errorf("decoding ack: %w", err)
	}
	if !ack.OK {
		f.view.MarkFailed(f.tempID)
		return nil
	}
	var msg domain.Message
	if err := json.Unmarshal(ack.Data, &msg); err != nil || msg.ID == 0 {
		f.view.MarkFailed(f.tempID)
		return nil
	}
	f.view.Resolve(f.tempID, msg)
	return nil
}

func (s *Session) openViews() []*View {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*View, 0, len(s.views))
	for v := range s.views {
		out = append(out, v)
	}
	return out
}

func (s *Session) forConversation(id uuid.UUID, fn func(v *View)) {
	for _, v := range s.openViews() {
		if v.ConversationID() == id {
			fn(v)
		}
	}
}

func ref(id int64) string {
	return strconv.FormatInt(id, 10)
}
