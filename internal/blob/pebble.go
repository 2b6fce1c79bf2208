package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	dataPrefix = "blob:data:"
	metaPrefix = "blob:meta:"
)

type meta struct {
	MimeType        string    `json:"mime_type"`
	FileName        string    `json:"file_name"`
	ResourceType    string    `json:"resource_type"`
	Size            int64     `json:"size"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// PebbleStore keeps blobs in a local pebble database and serves them under
// baseURL.
type PebbleStore struct {
	db      *pebble.DB
	baseURL string
	log     *zap.Logger
}

func OpenPebble(dir, baseURL string, log *zap.Logger) (*PebbleStore, error) {
	log.Info("opening_blob_store", zap.String("path", dir))
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble at %s: %w", dir, err)
	}
	return &PebbleStore{db: db, baseURL: strings.TrimRight(baseURL, "/"), log: log}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) Upload(ctx context.Context, data []byte, opts UploadOptions) (*UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}

	folder := strings.Trim(opts.Folder, "/")
	if folder == "" {
		folder = "uploads"
	}
	publicID := path.Join(folder, uuid.NewString())

	m, err := json.Marshal(meta{
		MimeType:        opts.MimeType,
		FileName:        opts.FileName,
		ResourceType:    opts.ResourceType,
		Size:            int64(len(data)),
		DurationSeconds: opts.DurationSeconds,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set([]byte(dataPrefix+publicID), data, nil); err != nil {
		return nil, err
	}
	if err := batch.Set([]byte(metaPrefix+publicID), m, nil); err != nil {
		return nil, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		s.log.Error("blob_upload_failed", zap.String("public_id", publicID), zap.Error(err))
		return nil, err
	}

	s.log.Debug("blob_uploaded", zap.String("public_id", publicID), zap.Int("bytes", len(data)))
	return &UploadResult{
		PublicID:        publicID,
		SecureURL:       s.baseURL + "/" + publicID,
		Bytes:           int64(len(data)),
		DurationSeconds: opts.DurationSeconds,
	}, nil
}

func (s *PebbleStore) Delete(ctx context.Context, publicID, resourceType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete([]byte(dataPrefix+publicID), nil); err != nil {
		return err
	}
	if err := batch.Delete([]byte(metaPrefix+publicID), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	s.log.Debug("blob_deleted", zap.String("public_id", publicID), zap.String("resource_type", resourceType))
	return nil
}

// Get returns the stored object or ErrNotFound.
func (s *PebbleStore) Get(ctx context.Context, publicID string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rawMeta, err := s.get(metaPrefix + publicID)
	if err != nil {
		return nil, err
	}
	var m meta
	if err := json.Unmarshal(rawMeta, &m); err != nil {
		return nil, fmt.Errorf("decoding blob meta: %w", err)
	}
	data, err := s.get(dataPrefix + publicID)
	if err != nil {
		return nil, err
	}
	return &Object{Data: data, MimeType: m.MimeType, FileName: m.FileName, ResourceType: m.ResourceType}, nil
}

func (s *PebbleStore) get(key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	// v is only valid until closer.Close
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}
