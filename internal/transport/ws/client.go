package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/pkg/errs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	commandTimeout = 10 * time.Second
	// Call offers carry SDP blobs, so the limit is well above chat text.
	maxMessageSize = 64 << 10
	sendBufSize    = 256
)

var (
	errInvalidPayload = errs.WithCode(errs.KindInvalidInput, "INVALID_PAYLOAD", "invalid payload")
	errUnknownEvent   = errs.WithCode(errs.KindInvalidInput, "UNKNOWN_EVENT", "unknown event type")
	errRateLimited    = errs.WithCode(errs.KindRateLimited, "RATE_LIMITED", "too many commands, slow down")
)

// MessageCommands is the part of the message service reachable from the
// socket.
type MessageCommands interface {
	Send(ctx context.Context, input service.SendMessageInput) (*domain.Message, error)
	Edit(ctx context.Context, messageID int64, newContent string, requesterID uuid.UUID) (*domain.Message, error)
	Delete(ctx context.Context, messageID int64, deleteType domain.DeleteType, requesterID uuid.UUID) error
	React(ctx context.Context, messageID int64, emoji string, requesterID uuid.UUID) (*service.ReactResult, error)
	UpdateStatus(ctx context.Context, messageID int64, status domain.MessageStatus, readerID *uuid.UUID) (*domain.Message, error)
}

// Access gates ephemeral events that never touch storage.
type Access interface {
	Peers(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error)
	CanSignal(ctx context.Context, from, to uuid.UUID) error
}

type Deps struct {
	Messages MessageCommands
	Access   Access
}

// Client represents a single WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	userID  uuid.UUID
	deps    Deps
	limiter *rate.Limiter
	log     *zap.Logger

	// send is closed by the hub only.
	send chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, deps Deps, limiter *rate.Limiter, log *zap.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		userID:  userID,
		deps:    deps,
		limiter: limiter,
		log:     log.With(zap.String("user_id", userID.String())),
		send:    make(chan []byte, sendBufSize),
	}
}

// ReadPump reads commands from the WebSocket until the connection closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		var event Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Debug("ws_client_closed")
			} else {
				c.log.Debug("ws_read_failed", zap.Error(err))
			}
			return
		}

		c.dispatch(ctx, &event)
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug("ws_write_failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Debug("ws_ping_failed", zap.Error(err))
				return
			}
		}
	}
}

// dispatch applies flood control and runs one command.
func (c *Client) dispatch(ctx context.Context, event *Event) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.respond(event.RequestID, nil, errRateLimited)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	data, err := c.handleEvent(ctx, event)
	c.respond(event.RequestID, data, err)
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(ctx context.Context, event *Event) (any, error) {
	switch event.Type {
	case EventTypeAddUser:
		return AddUserPayload{UserID: c.userID, OnlineUsers: c.hub.OnlineUsers()}, nil

	case EventTypeTypingStart, EventTypeTypingStop:
		return nil, c.handleTyping(ctx, event)

	case EventTypeSendMessage:
		var p SendMessagePayload
		if err := decode(event, &p); err != nil {
			return nil, err
		}
		return c.sendMessage(ctx, p)

	case EventTypeEditMessage:
		var p EditMessagePayload
		if err := decode(event, &p); err != nil {
			return nil, err
		}
		id, err := service.ParseMessageID(p.MessageID.String())
		if err != nil {
			return nil, err
		}
		return c.deps.Messages.Edit(ctx, id, p.NewContent, c.userID)

	case EventTypeDeleteMessage:
		var p DeleteMessagePayload
		if err := decode(event, &p); err != nil {
			return nil, err
		}
		id, err := service.ParseMessageID(p.MessageID.String())
		if err != nil {
			return nil, err
		}
		return nil, c.deps.Messages.Delete(ctx, id, p.DeleteType, c.userID)

	case EventTypeReactMessage:
		var p ReactMessagePayload
		if err := decode(event, &p); err != nil {
			return nil, err
		}
		id, err := service.ParseMessageID(p.MessageID.String())
		if err != nil {
			return nil, err
		}
		return c.deps.Messages.React(ctx, id, p.Emoji, c.userID)

	case EventTypeStatusUpdate:
		var p StatusUpdatePayload
		if err := decode(event, &p); err != nil {
			return nil, err
		}
		id, err := service.ParseMessageID(p.MessageID.String())
		if err != nil {
			return nil, err
		}
		return c.deps.Messages.UpdateStatus(ctx, id, p.Status, &c.userID)

	case EventTypeCallOffer, EventTypeCallAnswer, EventTypeCallIceCandidate, EventTypeCallEnd:
		return nil, c.relayCall(ctx, event)

	case EventTypePing:
		c.hub.emitToClient(c, &Event{Type: EventTypePong, Timestamp: time.Now().Unix()})
		return nil, nil
	}
	return nil, errs.WithCode(errs.KindInvalidInput, errUnknownEvent.Code, "unknown event type: "+event.Type)
}

func (c *Client) sendMessage(ctx context.Context, p SendMessagePayload) (*domain.Message, error) {
	body, err := p.body()
	if err != nil {
		return nil, errs.WithCode(errs.KindInvalidInput, "INVALID_MESSAGE", err.Error())
	}
	input := service.SendMessageInput{
		SenderID:       c.userID,
		RecipientID:    p.RecipientID,
		ConversationID: p.ConversationID,
		Body:           body,
		ClientTempID:   p.ClientTempID,
	}
	if p.ReplyToMessageID != nil {
		id, err := service.ParseMessageID(p.ReplyToMessageID.String())
		if err != nil {
			return nil, err
		}
		input.ReplyToMessageID = &id
	}
	return c.deps.Messages.Send(ctx, input)
}

// handleTyping forwards typing indicators to the other active participants.
func (c *Client) handleTyping(ctx context.Context, event *Event) error {
	var p TypingCommandPayload
	if len(event.Payload) > 0 {
		if err := decode(event, &p); err != nil {
			return err
		}
	}
	if p.ConversationID == uuid.Nil && event.ConversationID != nil {
		p.ConversationID = *event.ConversationID
	}
	if p.ConversationID == uuid.Nil {
		return errs.WithCode(errs.KindInvalidInput, errInvalidPayload.Code, "conversationId required for typing events")
	}

	peers, err := c.deps.Access.Peers(ctx, p.ConversationID, c.userID)
	if err != nil {
		return err
	}
	evt, err := NewEvent(event.Type, &p.ConversationID, TypingPayload{ConversationID: p.ConversationID, UserID: c.userID})
	if err != nil {
		return err
	}
	c.hub.EmitToParticipants(peers, evt, nil)
	return nil
}

// relayCall forwards opaque call signaling to the target user.
func (c *Client) relayCall(ctx context.Context, event *Event) error {
	var p CallSignalPayload
	if err := decode(event, &p); err != nil {
		return err
	}
	if p.To == uuid.Nil {
		return errs.WithCode(errs.KindInvalidInput, errInvalidPayload.Code, "call target required")
	}
	if err := c.deps.Access.CanSignal(ctx, c.userID, p.To); err != nil {
		return err
	}
	evt, err := NewEvent(event.Type, p.ConversationID, CallRelayPayload{
		From:           c.userID,
		ConversationID: p.ConversationID,
		Data:           p.Data,
	})
	if err != nil {
		return err
	}
	c.hub.EmitToUser(p.To, evt)
	return nil
}

// respond acks commands that carry a requestId. Failures without one are
// reported as an error event.
func (c *Client) respond(requestID string, data any, err error) {
	if err == nil && requestID == "" {
		return
	}

	var evt *Event
	var buildErr error
	switch {
	case err == nil:
		evt, buildErr = NewEvent(EventTypeAck, nil, AckPayload{OK: true, Data: data})
	case requestID != "":
		evt, buildErr = NewEvent(EventTypeAck, nil, AckPayload{OK: false, Error: c.errorPayload(err)})
	default:
		evt, buildErr = NewEvent(EventTypeError, nil, c.errorPayload(err))
	}
	if buildErr != nil {
		c.log.Error("ws_response_marshal_failed", zap.Error(buildErr))
		return
	}
	evt.RequestID = requestID
	c.hub.emitToClient(c, evt)
}

func (c *Client) errorPayload(err error) *ErrorPayload {
	if errs.KindOf(err) == errs.KindInternal {
		c.log.Error("ws_command_failed", zap.Error(err))
		return &ErrorPayload{Code: errs.CodeOf(err), Message: "internal error"}
	}
	return &ErrorPayload{
		Code:      errs.CodeOf(err),
		Message:   err.Error(),
		Retryable: errs.Retryable(err),
	}
}

func decode(event *Event, v any) error {
	if len(event.Payload) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(event.Payload, v); err != nil {
		return errs.WithCode(errs.KindInvalidInput, errInvalidPayload.Code, "invalid "+event.Type+" payload")
	}
	return nil
}
