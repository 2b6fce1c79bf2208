package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/pkg/validator"
	"go.uber.org/zap"
)

type ConversationHandler struct {
	chatState      *service.ChatStateService
	messageService *service.MessageService
	log            *zap.Logger
}

func NewConversationHandler(chatState *service.ChatStateService, messageService *service.MessageService, log *zap.Logger) *ConversationHandler {
	return &ConversationHandler{chatState: chatState, messageService: messageService, log: log}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	q := r.URL.Query()

	resp, err := h.chatState.ListConversations(r.Context(), userID, q.Get("cursor"), queryLimit(r), q.Get("q"))
	if err != nil {
		writeServiceError(w, h.log, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ConversationHandler) OpenDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	conv, err := h.chatState.OpenDirect(r.Context(), userID, input.UserID)
	if err != nil {
		writeServiceError(w, h.log, "open direct conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}
	q := r.URL.Query()
	markRead, _ := strconv.ParseBool(q.Get("markRead"))

	resp, err := h.messageService.ListMessages(r.Context(), service.ListMessagesInput{
		ConversationID: convID,
		ViewerID:       middleware.GetUserID(r.Context()),
		Cursor:         q.Get("cursor"),
		Limit:          queryLimit(r),
		Direction:      domain.Direction(q.Get("direction")),
		MarkRead:       markRead,
	})
	if err != nil {
		writeServiceError(w, h.log, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ConversationHandler) Search(w http.ResponseWriter, r *http.Request) {
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	msgs, err := h.messageService.Search(r.Context(), convID, r.URL.Query().Get("q"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "search messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *ConversationHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "pin conversation", h.chatState.Pin)
}

func (h *ConversationHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "unpin conversation", h.chatState.Unpin)
}

func (h *ConversationHandler) Mute(w http.ResponseWriter, r *http.Request) {
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	var input struct {
		Until time.Time `json:"until"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateMute(input.Until, time.Now()); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	p, err := h.chatState.Mute(r.Context(), convID, middleware.GetUserID(r.Context()), input.Until)
	if err != nil {
		writeServiceError(w, h.log, "mute conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ConversationHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "unmute conversation", h.chatState.Unmute)
}

func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "archive conversation", h.chatState.Archive)
}

func (h *ConversationHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "unarchive conversation", h.chatState.Unarchive)
}

func (h *ConversationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "clear conversation", h.chatState.Clear)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "delete conversation", h.chatState.DeleteForMe)
}

type stateChange func(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error)

func (h *ConversationHandler) toggle(w http.ResponseWriter, r *http.Request, op string, change stateChange) {
	convID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	p, err := change(r.Context(), convID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
