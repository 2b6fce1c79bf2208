package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vedran77/pulsechat/internal/domain"
)

type ParticipantRepo struct {
	db querier
}

const participantColumns = `p.conversation_id, p.user_id, p.role, p.is_pinned, p.pin_order,
	p.is_muted, p.muted_until, p.is_archived, p.is_deleted, p.cleared_at,
	p.joined_at, p.left_at, p.unread_count, u.username, u.display_name`

func (r *ParticipantRepo) Upsert(ctx context.Context, p *domain.Participant) error {
	query := `
		INSERT INTO conversation_participants (
			conversation_id, user_id, role, is_pinned, pin_order, is_muted, muted_until,
			is_archived, is_deleted, cleared_at, joined_at, left_at, unread_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			is_pinned = EXCLUDED.is_pinned,
			pin_order = EXCLUDED.pin_order,
			is_muted = EXCLUDED.is_muted,
			muted_until = EXCLUDED.muted_until,
			is_archived = EXCLUDED.is_archived,
			is_deleted = EXCLUDED.is_deleted,
			cleared_at = EXCLUDED.cleared_at,
			joined_at = EXCLUDED.joined_at,
			left_at = EXCLUDED.left_at,
			unread_count = EXCLUDED.unread_count`
	_, err := r.db.Exec(ctx, query,
		p.ConversationID, p.UserID, p.Role, p.IsPinned, p.PinOrder, p.IsMuted, p.MutedUntil,
		p.IsArchived, p.IsDeleted, p.ClearedAt, p.JoinedAt, p.LeftAt, p.UnreadCount,
	)
	return err
}

func (r *ParticipantRepo) Get(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1 AND p.user_id = $2`
	rows, err := r.db.Query(ctx, query, conversationID, userID)
	if err != nil {
		return nil, err
	}
	p, err := pgx.CollectOneRow(rows, scanParticipant)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepo) ListActive(ctx context.Context, conversationID uuid.UUID) ([]domain.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1 AND p.left_at IS NULL
		ORDER BY p.joined_at ASC, p.user_id ASC`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanParticipant)
}

func (r *ParticipantRepo) BumpForNewMessage(ctx context.Context, conversationID, senderID uuid.UUID) error {
	query := `
		UPDATE conversation_participants
		SET unread_count = unread_count + CASE WHEN user_id = $2 THEN 0 ELSE 1 END,
			is_deleted = false
		WHERE conversation_id = $1 AND left_at IS NULL`
	_, err := r.db.Exec(ctx, query, conversationID, senderID)
	return err
}

func (r *ParticipantRepo) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	query := `UPDATE conversation_participants SET unread_count = 0 WHERE conversation_id = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, conversationID, userID)
	return err
}

func (r *ParticipantRepo) CountPinned(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM conversation_participants WHERE user_id = $1 AND is_pinned`, userID,
	).Scan(&n)
	return n, err
}

func (r *ParticipantRepo) MinPinOrder(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(min(pin_order), 0) FROM conversation_participants WHERE user_id = $1 AND is_pinned`, userID,
	).Scan(&n)
	return n, err
}

func (r *ParticipantRepo) ExpireMutes(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE conversation_participants
		SET is_muted = false, muted_until = NULL
		WHERE is_muted AND muted_until IS NOT NULL AND muted_until <= $1`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanParticipant(row pgx.CollectableRow) (domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(
		&p.ConversationID, &p.UserID, &p.Role, &p.IsPinned, &p.PinOrder,
		&p.IsMuted, &p.MutedUntil, &p.IsArchived, &p.IsDeleted, &p.ClearedAt,
		&p.JoinedAt, &p.LeftAt, &p.UnreadCount, &p.Username, &p.DisplayName,
	)
	return p, err
}
