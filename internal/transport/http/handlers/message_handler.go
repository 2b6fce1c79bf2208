package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"go.uber.org/zap"
)

// multipartOverhead is the slack allowed on top of the file limit for the
// other form fields and part headers.
const multipartOverhead = 1 << 20

type MessageHandler struct {
	messageService *service.MessageService
	maxMediaBytes  int64
	log            *zap.Logger
}

func NewMessageHandler(messageService *service.MessageService, maxMediaBytes int64, log *zap.Logger) *MessageHandler {
	return &MessageHandler{messageService: messageService, maxMediaBytes: maxMediaBytes, log: log}
}

type sendMessageRequest struct {
	ReceiverID       *uuid.UUID           `json:"receiver_id"`
	ConversationID   *uuid.UUID           `json:"conversation_id"`
	Type             domain.MessageType   `json:"type"`
	Content          string               `json:"content"`
	Location         *domain.LocationBody `json:"location"`
	Call             *domain.CallBody     `json:"call"`
	ReplyToMessageID *int64               `json:"reply_to_message_id"`
	TempID           string               `json:"temp_id"`
}

func (req sendMessageRequest) body() (domain.Body, error) {
	switch req.Type {
	case "", domain.MessageText:
		return domain.TextBody{Text: req.Content}, nil
	case domain.MessageLocation:
		if req.Location == nil {
			return nil, domain.ErrEmptyBody
		}
		return *req.Location, nil
	case domain.MessageCall:
		if req.Call == nil {
			return nil, domain.ErrEmptyBody
		}
		return *req.Call, nil
	}
	return nil, fmt.Errorf("type %q cannot be sent as JSON", req.Type)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	body, err := req.body()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	msg, err := h.messageService.Send(r.Context(), service.SendMessageInput{
		SenderID:         middleware.GetUserID(r.Context()),
		RecipientID:      req.ReceiverID,
		ConversationID:   req.ConversationID,
		Body:             body,
		ReplyToMessageID: req.ReplyToMessageID,
		ClientTempID:     req.TempID,
	})
	if err != nil {
		writeServiceError(w, h.log, "send message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// SendMedia accepts a multipart form with a "file" part plus the target and
// message fields.
func (h *MessageHandler) SendMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxMediaBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeTooLarge(w)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "file is required")
		return
	}
	defer file.Close()
	if header.Size > h.maxMediaBytes {
		h.writeTooLarge(w)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Could not read file")
		return
	}

	input := service.SendMediaInput{
		SenderID:     middleware.GetUserID(r.Context()),
		Kind:         domain.MessageType(r.FormValue("type")),
		Caption:      r.FormValue("caption"),
		ClientTempID: r.FormValue("temp_id"),
		Data:         data,
		MimeType:     header.Header.Get("Content-Type"),
		FileName:     header.Filename,
	}
	if input.MimeType == "" || input.MimeType == "application/octet-stream" {
		input.MimeType = http.DetectContentType(data)
	}

	var fieldErr error
	input.RecipientID, fieldErr = formUUID(r, "receiver_id", fieldErr)
	input.ConversationID, fieldErr = formUUID(r, "conversation_id", fieldErr)
	input.Width, fieldErr = formInt(r, "width", fieldErr)
	input.Height, fieldErr = formInt(r, "height", fieldErr)
	if raw := r.FormValue("duration"); raw != "" && fieldErr == nil {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d < 0 {
			fieldErr = errors.New("invalid duration")
		}
		input.DurationSeconds = &d
	}
	if raw := r.FormValue("reply_to_message_id"); raw != "" && fieldErr == nil {
		id, err := service.ParseMessageID(raw)
		if err != nil {
			writeServiceError(w, h.log, "parse reply id", err)
			return
		}
		input.ReplyToMessageID = &id
	}
	if fieldErr != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", fieldErr.Error())
		return
	}

	msg, err := h.messageService.SendMedia(r.Context(), input)
	if err != nil {
		writeServiceError(w, h.log, "send media", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) writeTooLarge(w http.ResponseWriter) {
	writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
		fmt.Sprintf("File exceeds the %s limit", humanize.IBytes(uint64(h.maxMediaBytes))))
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathMessageID(w, r, h.log)
	if !ok {
		return
	}

	var input struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	msg, err := h.messageService.Edit(r.Context(), id, input.Content, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "edit message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathMessageID(w, r, h.log)
	if !ok {
		return
	}

	deleteType := domain.DeleteType(r.URL.Query().Get("type"))
	if err := h.messageService.Delete(r.Context(), id, deleteType, middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, h.log, "delete message", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	id, ok := pathMessageID(w, r, h.log)
	if !ok {
		return
	}

	var input struct {
		Emoji string `json:"emoji"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	res, err := h.messageService.React(r.Context(), id, input.Emoji, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "react to message", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MessageHandler) Star(w http.ResponseWriter, r *http.Request) {
	h.setStar(w, r, true)
}

func (h *MessageHandler) Unstar(w http.ResponseWriter, r *http.Request) {
	h.setStar(w, r, false)
}

func (h *MessageHandler) setStar(w http.ResponseWriter, r *http.Request, starred bool) {
	id, ok := pathMessageID(w, r, h.log)
	if !ok {
		return
	}

	msg, err := h.messageService.Star(r.Context(), id, starred, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "star message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathMessageID(w, r, h.log)
	if !ok {
		return
	}

	var input struct {
		Status domain.MessageStatus `json:"status"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	msg, err := h.messageService.UpdateStatus(r.Context(), id, input.Status, &userID)
	if err != nil {
		writeServiceError(w, h.log, "update message status", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Forward(w http.ResponseWriter, r *http.Request) {
	var input struct {
		MessageIDs      []json.RawMessage `json:"message_ids"`
		ConversationIDs []uuid.UUID       `json:"conversation_ids"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	ids := make([]int64, 0, len(input.MessageIDs))
	for _, raw := range input.MessageIDs {
		// ids may arrive as numbers or strings
		id, err := service.ParseMessageID(strings.Trim(string(raw), `"`))
		if err != nil {
			writeServiceError(w, h.log, "parse forward id", err)
			return
		}
		ids = append(ids, id)
	}

	msgs, err := h.messageService.Forward(r.Context(), service.ForwardInput{
		MessageIDs:      ids,
		ConversationIDs: input.ConversationIDs,
		RequesterID:     middleware.GetUserID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, h.log, "forward messages", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"messages": msgs})
}

func (h *MessageHandler) Starred(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messageService.ListStarred(r.Context(), middleware.GetUserID(r.Context()), queryLimit(r))
	if err != nil {
		writeServiceError(w, h.log, "list starred messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func formUUID(r *http.Request, field string, prev error) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if prev != nil || raw == "" {
		return nil, prev
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", field)
	}
	return &id, nil
}

func formInt(r *http.Request, field string, prev error) (*int, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if prev != nil || raw == "" {
		return nil, prev
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid %s", field)
	}
	return &n, nil
}
