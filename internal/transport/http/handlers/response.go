package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/pkg/errs"
	"github.com/vedran77/pulsechat/pkg/validator"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":   "VALIDATION_ERROR",
			"fields": errs,
		},
	})
}

// writeServiceError maps a classified service error onto the error envelope.
// Unclassified errors are logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	status := errs.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Error(op, zap.Error(err))
		writeError(w, status, "INTERNAL", "Something went wrong")
		return
	}
	if errs.Retryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, errs.CodeOf(err), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

func pathMessageID(w http.ResponseWriter, r *http.Request, log *zap.Logger) (int64, bool) {
	id, err := service.ParseMessageID(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, log, "parse message id", err)
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}
