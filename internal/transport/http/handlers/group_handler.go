package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/pkg/validator"
	"go.uber.org/zap"
)

type GroupHandler struct {
	groupService *service.GroupService
	log          *zap.Logger
}

func NewGroupHandler(groupService *service.GroupService, log *zap.Logger) *GroupHandler {
	return &GroupHandler{groupService: groupService, log: log}
}

type memberIDsRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string      `json:"name"`
		Description *string     `json:"description"`
		IconURL     *string     `json:"icon_url"`
		MemberIDs   []uuid.UUID `json:"member_ids"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	if errs := validator.ValidateGroup(&input.Name, input.Description, input.IconURL); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	group, err := h.groupService.CreateGroup(r.Context(), service.CreateGroupInput{
		CreatorID:   middleware.GetUserID(r.Context()),
		Name:        input.Name,
		Description: input.Description,
		IconURL:     input.IconURL,
		MemberIDs:   input.MemberIDs,
	})
	if err != nil {
		writeServiceError(w, h.log, "create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	group, err := h.groupService.Get(r.Context(), groupID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, "get group", err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	var input struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IconURL     *string `json:"icon_url"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateGroup(input.Name, input.Description, input.IconURL); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	conv, err := h.groupService.UpdateInfo(r.Context(), groupID, middleware.GetUserID(r.Context()), service.UpdateGroupInput{
		Name:        input.Name,
		Description: input.Description,
		IconURL:     input.IconURL,
	})
	if err != nil {
		writeServiceError(w, h.log, "update group", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	var input memberIDsRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if len(input.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "MISSING_USER_IDS", "user_ids is required")
		return
	}

	group, err := h.groupService.AddMembers(r.Context(), groupID, middleware.GetUserID(r.Context()), input.UserIDs)
	if err != nil {
		writeServiceError(w, h.log, "add group members", err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) RemoveMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	var input memberIDsRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if len(input.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "MISSING_USER_IDS", "user_ids is required")
		return
	}

	group, err := h.groupService.RemoveMembers(r.Context(), groupID, middleware.GetUserID(r.Context()), input.UserIDs)
	if err != nil {
		writeServiceError(w, h.log, "remove group members", err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}
	targetID, ok := pathUUID(w, r, "uid", "user")
	if !ok {
		return
	}

	var input struct {
		Role domain.ParticipantRole `json:"role"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	p, err := h.groupService.UpdateRole(r.Context(), groupID, middleware.GetUserID(r.Context()), targetID, input.Role)
	if err != nil {
		writeServiceError(w, h.log, "update group role", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	if _, err := h.groupService.LeaveGroup(r.Context(), groupID, middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, h.log, "leave group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	if err := h.groupService.DeleteGroup(r.Context(), groupID, middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, h.log, "delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
