package postgres

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vedran77/pulsechat/internal/domain"
)

type MessageRepo struct {
	db querier
}

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.type, m.content, m.caption, m.status,
	m.is_edited, m.edited_at, m.edit_history, m.is_deleted_for_everyone, m.deleted_for_everyone_at,
	m.deleted_by, m.reply_to_message_id, m.quoted_message, m.is_forwarded, m.original_message_id,
	m.forward_count, m.created_at`

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (
			conversation_id, sender_id, type, content, caption, status, edit_history,
			deleted_by, reply_to_message_id, quoted_message, is_forwarded,
			original_message_id, forward_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return r.db.QueryRow(ctx, query,
		msg.ConversationID, msg.SenderID, msg.Type, msg.Content, msg.Caption, msg.Status,
		msg.EditHistory, msg.DeletedBy, msg.ReplyToMessageID, msg.QuotedMessage,
		msg.IsForwarded, msg.OriginalMessageID, msg.ForwardCount, msg.CreatedAt,
	).Scan(&msg.ID)
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	msgs, err := r.listByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

func (r *MessageRepo) Update(ctx context.Context, msg *domain.Message) error {
	query := `
		UPDATE messages SET
			content = $1, caption = $2, status = $3, is_edited = $4, edited_at = $5,
			edit_history = $6, is_deleted_for_everyone = $7, deleted_for_everyone_at = $8,
			deleted_by = $9
		WHERE id = $10`
	_, err := r.db.Exec(ctx, query,
		msg.Content, msg.Caption, msg.Status, msg.IsEdited, msg.EditedAt,
		msg.EditHistory, msg.IsDeletedForEveryone, msg.DeletedForEveryoneAt,
		msg.DeletedBy, msg.ID,
	)
	return err
}

func (r *MessageRepo) List(ctx context.Context, params domain.ListMessagesParams) ([]domain.Message, error) {
	order := "DESC"
	bound := "($4 = 0 OR m.id < $4)"
	if params.Direction == domain.DirectionNewer {
		order = "ASC"
		bound = "m.id > $4"
	}
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.conversation_id = $1
			AND ($2::timestamptz IS NULL OR m.created_at > $2)
			AND NOT ($3::uuid = ANY(COALESCE(m.deleted_by, '{}')))
			AND ($6::timestamptz IS NULL OR m.created_at <= $6)
			AND ` + bound + `
		ORDER BY m.id ` + order + `
		LIMIT $5`

	rows, err := r.db.Query(ctx, query,
		params.ConversationID, params.ClearedAt, params.ViewerID, params.Cursor, params.Limit, params.LeftAt,
	)
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, err
	}

	// Reverse da budu chronological (query ih daje DESC)
	if order == "DESC" {
		slices.Reverse(messages)
	}
	return messages, r.hydrate(ctx, messages)
}

func (r *MessageRepo) Search(ctx context.Context, params domain.SearchMessagesParams) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN media_files f ON f.message_id = m.id
		WHERE m.conversation_id = $1
			AND m.type <> 'system'
			AND NOT m.is_deleted_for_everyone
			AND ($2::timestamptz IS NULL OR m.created_at > $2)
			AND NOT ($3::uuid = ANY(COALESCE(m.deleted_by, '{}')))
			AND ($6::timestamptz IS NULL OR m.created_at <= $6)
			AND (
				(m.type IN ('text', 'location', 'call') AND m.content ILIKE $4)
				OR m.caption ILIKE $4
				OR f.file_name ILIKE $4
			)
		ORDER BY m.id DESC
		LIMIT $5`

	rows, err := r.db.Query(ctx, query,
		params.ConversationID, params.ClearedAt, params.ViewerID, likePattern(params.Query), params.Limit, params.LeftAt,
	)
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, err
	}
	return messages, r.hydrate(ctx, messages)
}

func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) ([]int64, error) {
	query := `
		UPDATE messages SET status = 'read'
		WHERE conversation_id = $1 AND sender_id <> $2 AND status <> 'read'
		RETURNING id`
	rows, err := r.db.Query(ctx, query, conversationID, readerID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *MessageRepo) GetReaction(ctx context.Context, messageID int64, userID uuid.UUID) (*domain.Reaction, error) {
	var re domain.Reaction
	err := r.db.QueryRow(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1 AND user_id = $2`, messageID, userID,
	).Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &re, nil
}

func (r *MessageRepo) UpsertReaction(ctx context.Context, re *domain.Reaction) error {
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = EXCLUDED.emoji, created_at = EXCLUDED.created_at`
	_, err := r.db.Exec(ctx, query, re.MessageID, re.UserID, re.Emoji, re.CreatedAt)
	return err
}

func (r *MessageRepo) DeleteReaction(ctx context.Context, messageID int64, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`, messageID, userID)
	return err
}

func (r *MessageRepo) ListReactions(ctx context.Context, messageID int64) ([]domain.Reaction, error) {
	return r.reactionsFor(ctx, []int64{messageID})
}

func (r *MessageRepo) SetStar(ctx context.Context, messageID int64, userID uuid.UUID, starred bool) error {
	if !starred {
		_, err := r.db.Exec(ctx, `DELETE FROM message_stars WHERE message_id = $1 AND user_id = $2`, messageID, userID)
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_stars (message_id, user_id, starred_at)
		VALUES ($1, $2, now())
		ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	return err
}

func (r *MessageRepo) ListStarred(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM message_stars s
		JOIN messages m ON m.id = s.message_id
		WHERE s.user_id = $1
			AND NOT m.is_deleted_for_everyone
			AND NOT ($1 = ANY(COALESCE(m.deleted_by, '{}')))
		ORDER BY s.starred_at DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, err
	}
	return messages, r.hydrate(ctx, messages)
}

func (r *MessageRepo) listByIDs(ctx context.Context, ids []int64) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, "SELECT "+messageColumns+" FROM messages m WHERE m.id = ANY($1) ORDER BY m.id", ids)
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, err
	}
	return messages, r.hydrate(ctx, messages)
}

// hydrate loads reactions, stars and media for a page of messages.
func (r *MessageRepo) hydrate(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]int64, len(messages))
	index := make(map[int64]*domain.Message, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
		index[messages[i].ID] = &messages[i]
	}

	reactions, err := r.reactionsFor(ctx, ids)
	if err != nil {
		return err
	}
	for _, re := range reactions {
		m := index[re.MessageID]
		m.Reactions = append(m.Reactions, re)
	}

	rows, err := r.db.Query(ctx, `
		SELECT message_id, user_id, starred_at FROM message_stars
		WHERE message_id = ANY($1) ORDER BY starred_at`, ids)
	if err != nil {
		return err
	}
	stars, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Star, error) {
		var s domain.Star
		err := row.Scan(&s.MessageID, &s.UserID, &s.StarredAt)
		return s, err
	})
	if err != nil {
		return err
	}
	for _, s := range stars {
		m := index[s.MessageID]
		m.StarredBy = append(m.StarredBy, s)
	}

	media := &MediaRepo{db: r.db}
	files, err := media.listByMessageIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range files {
		index[files[i].MessageID].Media = &files[i]
	}
	return nil
}

func (r *MessageRepo) reactionsFor(ctx context.Context, ids []int64) ([]domain.Reaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT message_id, user_id, emoji, created_at FROM message_reactions
		WHERE message_id = ANY($1) ORDER BY created_at, user_id`, ids)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Reaction, error) {
		var re domain.Reaction
		err := row.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt)
		return re, err
	})
}

func scanMessage(row pgx.CollectableRow) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Type, &m.Content, &m.Caption, &m.Status,
		&m.IsEdited, &m.EditedAt, &m.EditHistory, &m.IsDeletedForEveryone, &m.DeletedForEveryoneAt,
		&m.DeletedBy, &m.ReplyToMessageID, &m.QuotedMessage, &m.IsForwarded, &m.OriginalMessageID,
		&m.ForwardCount, &m.CreatedAt,
	)
	return m, err
}

// likePattern turns free text into an ILIKE substring pattern.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(q)) + "%"
}
