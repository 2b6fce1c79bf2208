package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository"
)

// ConversationResolver maps a request target to a conversation. It always
// runs on the caller's transaction.
type ConversationResolver struct{}

func NewConversationResolver() *ConversationResolver {
	return &ConversationResolver{}
}

// ResolveDirect finds or creates the direct conversation of the unordered
// pair {a, b}. a == b is a self-chat.
func (r *ConversationResolver) ResolveDirect(ctx context.Context, tx repository.Repos, a, b uuid.UUID) (*domain.Conversation, error) {
	key := domain.DirectKey(a, b)

	conv, err := tx.Conversations().GetByDirectKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	// Validate other user exists
	other, err := tx.Users().GetByID(ctx, b)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, ErrUserNotFound
	}

	now := time.Now().UTC()
	conv = &domain.Conversation{
		ID:        uuid.New(),
		Kind:      domain.ConversationDirect,
		DirectKey: &key,
		CreatedAt: now,
	}
	created := conv.ID
	if err := tx.Conversations().Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating direct conversation: %w", err)
	}
	if conv.ID != created {
		// lost the race to a concurrent creator
		return conv, nil
	}

	members := []uuid.UUID{a}
	if a != b {
		members = append(members, b)
	}
	for _, userID := range members {
		p := &domain.Participant{
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           domain.RoleMember,
			JoinedAt:       now,
		}
		if err := tx.Participants().Upsert(ctx, p); err != nil {
			return nil, fmt.Errorf("adding participant: %w", err)
		}
	}
	return conv, nil
}

// ResolveGroup loads id and asserts it is a group.
func (r *ConversationResolver) ResolveGroup(ctx context.Context, tx repository.Repos, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := tx.Conversations().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.IsGroup() {
		return nil, ErrGroupNotFound
	}
	return conv, nil
}

// ResolveAny loads a conversation of either kind.
func (r *ConversationResolver) ResolveAny(ctx context.Context, tx repository.Repos, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := tx.Conversations().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// Participant returns the caller's row, which may have left the group.
func (r *ConversationResolver) Participant(ctx context.Context, tx repository.Repos, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	p, err := tx.Participants().Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotParticipant
	}
	return p, nil
}

// ActiveParticipant is Participant restricted to current members.
func (r *ConversationResolver) ActiveParticipant(ctx context.Context, tx repository.Repos, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	p, err := r.Participant(ctx, tx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, ErrNotParticipant
	}
	return p, nil
}

// Authorize checks that userID may interact with conv: an active member
// and, for direct chats, not blocked by or blocking the peer.
func (r *ConversationResolver) Authorize(ctx context.Context, tx repository.Repos, conv *domain.Conversation, userID uuid.UUID) ([]domain.Participant, error) {
	if _, err := r.ActiveParticipant(ctx, tx, conv.ID, userID); err != nil {
		return nil, err
	}
	active, err := tx.Participants().ListActive(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if conv.IsGroup() {
		return active, nil
	}
	for _, p := range active {
		if p.UserID == userID {
			continue
		}
		blocked, err := tx.Users().IsBlockedEither(ctx, userID, p.UserID)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, ErrBlocked
		}
	}
	return active, nil
}

func userIDs(ps []domain.Participant) []uuid.UUID {
	ids := make([]uuid.UUID, len(ps))
	for i, p := range ps {
		ids[i] = p.UserID
	}
	return ids
}
