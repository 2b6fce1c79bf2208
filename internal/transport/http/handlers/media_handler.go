package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/vedran77/pulsechat/internal/blob"
	"go.uber.org/zap"
)

// BlobReader serves stored media back to clients.
type BlobReader interface {
	Get(ctx context.Context, publicID string) (*blob.Object, error)
}

type MediaHandler struct {
	blobs BlobReader
	log   *zap.Logger
}

func NewMediaHandler(blobs BlobReader, log *zap.Logger) *MediaHandler {
	return &MediaHandler{blobs: blobs, log: log}
}

func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	publicID := r.PathValue("publicId")
	if publicID == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Media not found")
		return
	}

	obj, err := h.blobs.Get(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Media not found")
			return
		}
		h.log.Error("get media", zap.String("public_id", publicID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	if obj.MimeType != "" {
		w.Header().Set("Content-Type", obj.MimeType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}
