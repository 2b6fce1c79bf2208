package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// Lookups return (nil, nil) when the row does not exist.

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error)
	Block(ctx context.Context, blockerID, blockedID uuid.UUID) error
	Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error
	// IsBlockedEither reports whether a blocked b or b blocked a.
	IsBlockedEither(ctx context.Context, a, b uuid.UUID) (bool, error)
	ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]domain.User, error)
}

type ConversationRepository interface {
	// Create inserts conv. When a direct conversation with the same key
	// already exists, conv is overwritten with the stored row.
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetByDirectKey(ctx context.Context, key string) (*domain.Conversation, error)
	Update(ctx context.Context, conv *domain.Conversation) error
	Touch(ctx context.Context, id uuid.UUID, messageID int64, at time.Time) error
	// Delete removes the conversation and everything hanging off it.
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, params domain.ListConversationsParams) ([]domain.ConversationSummary, error)
}

type ParticipantRepository interface {
	// Upsert inserts or fully overwrites the (conversation, user) row.
	Upsert(ctx context.Context, p *domain.Participant) error
	Get(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error)
	// ListActive returns rows without left_at ordered by joined_at ascending.
	ListActive(ctx context.Context, conversationID uuid.UUID) ([]domain.Participant, error)
	// BumpForNewMessage increments unread for every active participant
	// except senderID and clears is_deleted for every active participant.
	BumpForNewMessage(ctx context.Context, conversationID, senderID uuid.UUID) error
	ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	CountPinned(ctx context.Context, userID uuid.UUID) (int, error)
	MinPinOrder(ctx context.Context, userID uuid.UUID) (int, error)
	ExpireMutes(ctx context.Context, now time.Time) (int64, error)
}

type MessageRepository interface {
	// Create assigns ID and CreatedAt.
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	// Update persists the mutable columns of msg.
	Update(ctx context.Context, msg *domain.Message) error
	List(ctx context.Context, params domain.ListMessagesParams) ([]domain.Message, error)
	Search(ctx context.Context, params domain.SearchMessagesParams) ([]domain.Message, error)
	// MarkRead upgrades every message in the conversation not sent by
	// readerID to read and returns the ids that changed.
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) ([]int64, error)
	GetReaction(ctx context.Context, messageID int64, userID uuid.UUID) (*domain.Reaction, error)
	UpsertReaction(ctx context.Context, r *domain.Reaction) error
	DeleteReaction(ctx context.Context, messageID int64, userID uuid.UUID) error
	ListReactions(ctx context.Context, messageID int64) ([]domain.Reaction, error)
	SetStar(ctx context.Context, messageID int64, userID uuid.UUID, starred bool) error
	ListStarred(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Message, error)
}

type MediaRepository interface {
	Create(ctx context.Context, f *domain.MediaFile) error
	GetByMessageID(ctx context.Context, messageID int64) (*domain.MediaFile, error)
	DeleteByMessageID(ctx context.Context, messageID int64) error
	CountByStorageKey(ctx context.Context, key string) (int, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.MediaFile, error)
}

// Repos is the set of repositories bound to one connection or transaction.
type Repos interface {
	Users() UserRepository
	Conversations() ConversationRepository
	Participants() ParticipantRepository
	Messages() MessageRepository
	Media() MediaRepository
}

// Store is the persistence boundary. Reads may go through the embedded
// Repos directly; every mutation runs inside WithTx, which commits when fn
// returns nil and rolls back otherwise.
type Store interface {
	Repos
	WithTx(ctx context.Context, fn func(tx Repos) error) error
}
