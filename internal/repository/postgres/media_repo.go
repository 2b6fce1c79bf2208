package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vedran77/pulsechat/internal/domain"
)

type MediaRepo struct {
	db querier
}

const mediaColumns = `f.id, f.message_id, f.storage_key, f.url, f.resource_type, f.mime_type,
	f.file_name, f.size_bytes, f.width, f.height, f.duration_seconds, f.thumbnail_url, f.created_at`

func (r *MediaRepo) Create(ctx context.Context, f *domain.MediaFile) error {
	query := `
		INSERT INTO media_files (
			message_id, storage_key, url, resource_type, mime_type, file_name,
			size_bytes, width, height, duration_seconds, thumbnail_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		f.MessageID, f.StorageKey, f.URL, f.ResourceType, f.MimeType, f.FileName,
		f.SizeBytes, f.Width, f.Height, f.DurationSeconds, f.ThumbnailURL,
	).Scan(&f.ID, &f.CreatedAt)
}

func (r *MediaRepo) GetByMessageID(ctx context.Context, messageID int64) (*domain.MediaFile, error) {
	files, err := r.listByMessageIDs(ctx, []int64{messageID})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return &files[0], nil
}

func (r *MediaRepo) DeleteByMessageID(ctx context.Context, messageID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM media_files WHERE message_id = $1`, messageID)
	return err
}

func (r *MediaRepo) CountByStorageKey(ctx context.Context, key string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM media_files WHERE storage_key = $1`, key).Scan(&n)
	return n, err
}

func (r *MediaRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.MediaFile, error) {
	query := `
		SELECT ` + mediaColumns + `
		FROM media_files f
		JOIN messages m ON m.id = f.message_id
		WHERE m.conversation_id = $1
		ORDER BY f.id`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanMedia)
}

func (r *MediaRepo) listByMessageIDs(ctx context.Context, ids []int64) ([]domain.MediaFile, error) {
	rows, err := r.db.Query(ctx, "SELECT "+mediaColumns+" FROM media_files f WHERE f.message_id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	files, err := pgx.CollectRows(rows, scanMedia)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return files, err
}

func scanMedia(row pgx.CollectableRow) (domain.MediaFile, error) {
	var f domain.MediaFile
	err := row.Scan(
		&f.ID, &f.MessageID, &f.StorageKey, &f.URL, &f.ResourceType, &f.MimeType,
		&f.FileName, &f.SizeBytes, &f.Width, &f.Height, &f.DurationSeconds, &f.ThumbnailURL, &f.CreatedAt,
	)
	return f, err
}
