package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vedran77/pulsechat/internal/domain"
)

type ConversationRepo struct {
	db querier
}

const conversationColumns = `c.id, c.kind, c.direct_key, c.name, c.description, c.icon_url,
	c.creator_id, c.created_at, c.last_message_id, c.last_message_at`

// Create inserts conv. For a direct conversation whose key is already taken,
// conv is overwritten with the stored row instead.
func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (id, kind, direct_key, name, description, icon_url, creator_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (direct_key) DO NOTHING`
	tag, err := r.db.Exec(ctx, query,
		conv.ID, conv.Kind, conv.DirectKey, conv.Name, conv.Description,
		conv.IconURL, conv.CreatorID, conv.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 && conv.DirectKey != nil {
		existing, err := r.GetByDirectKey(ctx, *conv.DirectKey)
		if err != nil {
			return err
		}
		if existing != nil {
			*conv = *existing
		}
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return r.getOne(ctx, "SELECT "+conversationColumns+" FROM conversations c WHERE c.id = $1", id)
}

func (r *ConversationRepo) GetByDirectKey(ctx context.Context, key string) (*domain.Conversation, error) {
	return r.getOne(ctx, "SELECT "+conversationColumns+" FROM conversations c WHERE c.direct_key = $1", key)
}

func (r *ConversationRepo) Update(ctx context.Context, conv *domain.Conversation) error {
	query := `UPDATE conversations SET name = $1, description = $2, icon_url = $3 WHERE id = $4`
	_, err := r.db.Exec(ctx, query, conv.Name, conv.Description, conv.IconURL, conv.ID)
	return err
}

func (r *ConversationRepo) Touch(ctx context.Context, id uuid.UUID, messageID int64, at time.Time) error {
	query := `UPDATE conversations SET last_message_id = $1, last_message_at = $2 WHERE id = $3`
	_, err := r.db.Exec(ctx, query, messageID, at, id)
	return err
}

func (r *ConversationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return err
}

func (r *ConversationRepo) ListForUser(ctx context.Context, params domain.ListConversationsParams) ([]domain.ConversationSummary, error) {
	query := `
		SELECT ` + conversationColumns + `,
			p.role, p.is_pinned, p.pin_order, p.is_muted, p.muted_until, p.is_archived,
			p.is_deleted, p.cleared_at, p.joined_at, p.left_at, p.unread_count,
			peer.id, peer.email, peer.username, peer.display_name, peer.avatar_url, peer.created_at
		FROM conversation_participants p
		JOIN conversations c ON c.id = p.conversation_id
		LEFT JOIN LATERAL (
			SELECT u.id, u.email, u.username, u.display_name, u.avatar_url, u.created_at
			FROM conversation_participants op
			JOIN users u ON u.id = op.user_id
			WHERE op.conversation_id = c.id
			ORDER BY (op.user_id = $1)
			LIMIT 1
		) peer ON c.kind = 'direct'
		WHERE p.user_id = $1 AND NOT p.is_deleted
			AND ($2 = ''
				OR (c.kind = 'group' AND c.name ILIKE $3)
				OR (c.kind = 'direct' AND (peer.username ILIKE $3 OR peer.display_name ILIKE $3)))
		ORDER BY p.is_pinned DESC, p.pin_order ASC, c.last_message_at DESC NULLS LAST, c.created_at DESC
		LIMIT $4 OFFSET $5`

	rows, err := r.db.Query(ctx, query,
		params.UserID, params.Query, likePattern(params.Query), params.Limit, params.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		summaries []domain.ConversationSummary
		lastIDs   []int64
	)
	for rows.Next() {
		var (
			s           domain.ConversationSummary
			peerID      *uuid.UUID
			peerEmail   *string
			peerName    *string
			peerDisplay *string
			peerAvatar  *string
			peerCreated *time.Time
		)
		if err := rows.Scan(
			&s.ID, &s.Kind, &s.DirectKey, &s.Name, &s.Description, &s.IconURL,
			&s.CreatorID, &s.CreatedAt, &s.LastMessageID, &s.LastMessageAt,
			&s.State.Role, &s.State.IsPinned, &s.State.PinOrder, &s.State.IsMuted,
			&s.State.MutedUntil, &s.State.IsArchived, &s.State.IsDeleted,
			&s.State.ClearedAt, &s.State.JoinedAt, &s.State.LeftAt, &s.State.UnreadCount,
			&peerID, &peerEmail, &peerName, &peerDisplay, &peerAvatar, &peerCreated,
		); err != nil {
			return nil, err
		}
		s.State.ConversationID = s.ID
		s.State.UserID = params.UserID
		if peerID != nil {
			s.Peer = &domain.User{
				ID:          *peerID,
				Email:       deref(peerEmail),
				Username:    deref(peerName),
				DisplayName: deref(peerDisplay),
				AvatarURL:   peerAvatar,
				CreatedAt:   derefTime(peerCreated),
			}
		}
		if s.LastMessageID != nil {
			lastIDs = append(lastIDs, *s.LastMessageID)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(lastIDs) == 0 {
		return summaries, nil
	}
	messages := &MessageRepo{db: r.db}
	last, err := messages.listByIDs(ctx, lastIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*domain.Message, len(last))
	for i := range last {
		byID[last[i].ID] = &last[i]
	}
	for i := range summaries {
		s := &summaries[i]
		if s.LastMessageID == nil {
			continue
		}
		m, ok := byID[*s.LastMessageID]
		if ok && s.State.CanSee(m.CreatedAt) && !m.IsDeletedFor(params.UserID) {
			s.LastMessage = m
		}
	}
	return summaries, nil
}

func (r *ConversationRepo) getOne(ctx context.Context, query string, arg any) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.Kind, &c.DirectKey, &c.Name, &c.Description, &c.IconURL,
		&c.CreatorID, &c.CreatedAt, &c.LastMessageID, &c.LastMessageAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
