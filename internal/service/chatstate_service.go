package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository"
)

// ChatStateService owns the per-participant view of a conversation. Every
// toggle is synced to the owner's other devices.
type ChatStateService struct {
	notifierRef
	store    repository.Store
	resolver *ConversationResolver
	now      func() time.Time
}

func NewChatStateService(store repository.Store, resolver *ConversationResolver) *ChatStateService {
	return &ChatStateService{
		store:    store,
		resolver: resolver,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type ConversationListResponse struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
	HasMore       bool                         `json:"has_more"`
	NextCursor    string                       `json:"next_cursor,omitempty"`
}

func (s *ChatStateService) Pin(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	return s.update(ctx, domain.EventChatPinned, conversationID, userID, func(tx repository.Repos, p *domain.Participant) error {
		if p.IsPinned {
			return nil
		}
		pinned, err := tx.Participants().CountPinned(ctx, userID)
		if err != nil {
			return err
		}
		if pinned >= domain.MaxPinned {
			return ErrPinLimit
		}
		lowest, err := tx.Participants().MinPinOrder(ctx, userID)
		if err != nil {
			return err
		}
		p.IsPinned = true
		p.PinOrder = lowest - 1
		return nil
	})
}

func (s *ChatStateService) Unpin(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	return s.update(ctx, domain.EventChatPinned, conversationID, userID, func(_ repository.Repos, p *domain.Participant) error {
		p.IsPinned = false
		p.PinOrder = 0
		return nil
	})
}

func (s *ChatStateService) Mute(ctx context.Context, conversationID, userID uuid.UUID, until time.Time) (*domain.Participant, error) {
	if !until.After(s.now()) {
		return nil, ErrMuteInPast
	}
	until = until.UTC()
	return s.update(ctx, domain.EventChatMuted, conversationID, userID, func(_ repository.Repos, p *domain.Participant) error {
		p.IsMuted = true
		p.MutedUntil = &until
		return nil
	})
}

func (s *ChatStateService) Unmute(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	return s.update(ctx, domain.EventChatMuted, conversationID, userID, func(_ repository.Repos, p *domain.Participant) error {
		p.IsMuted = false
		p.MutedUntil = nil
		return nil
	})
}

func (s *ChatStateService) Archive(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	return s.setArchived(ctx, conversationID, userID, true)
}

func (s *ChatStateService) Unarchive(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	return s.setArchived(ctx, conversationID, userID, false)
}

func (s *ChatStateService) setArchived(ctx context.Context, conversationID, userID uuid.UUID, archived bool) (*domain.Participant, error) {
	return s.update(ctx, domain.EventChatArchived, conversationID, userID, func(_ repository.Repos, p *domain.Participant) error {
		p.IsArchived = archived
		return nil
	})
}

// Clear hides everything sent so far from this user only.
func (s *ChatStateService) Clear(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	return s.update(ctx, domain.EventChatCleared, conversationID, userID, func(_ repository.Repos, p *domain.Participant) error {
		now := s.now()
		p.ClearedAt = &now
		p.UnreadCount = 0
		return nil
	})
}

// DeleteForMe removes the conversation from the user's list until the next
// message arrives.
func (s *ChatStateService) DeleteForMe(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	return s.update(ctx, domain.EventChatDeleted, conversationID, userID, func(_ repository.Repos, p *domain.Participant) error {
		p.IsDeleted = true
		p.UnreadCount = 0
		return nil
	})
}

// OpenDirect returns the direct conversation with peerID, creating it on
// first use. Blocked pairs may still open the conversation; sending is
// refused at send time.
func (s *ChatStateService) OpenDirect(ctx context.Context, userID, peerID uuid.UUID) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		var err error
		conv, err = s.resolver.ResolveDirect(ctx, tx, userID, peerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ChatStateService) ListConversations(ctx context.Context, userID uuid.UUID, cursor string, limit int, query string) (*ConversationListResponse, error) {
	offset, err := decodeOffsetCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	rows, err := s.store.Conversations().ListForUser(ctx, domain.ListConversationsParams{
		UserID: userID,
		Query:  strings.TrimSpace(query),
		Offset: offset,
		Limit:  limit + 1,
	})
	if err != nil {
		return nil, err
	}

	resp := &ConversationListResponse{Conversations: rows}
	if len(rows) > limit {
		resp.Conversations = rows[:limit]
		resp.HasMore = true
		resp.NextCursor = encodeCursor(offsetCursor{Offset: offset + limit})
	}
	if resp.Conversations == nil {
		resp.Conversations = []domain.ConversationSummary{}
	}
	return resp, nil
}

// ExpireMutes clears every mute whose until timestamp has passed.
func (s *ChatStateService) ExpireMutes(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		var err error
		n, err = tx.Participants().ExpireMutes(ctx, s.now())
		return err
	})
	return n, err
}

func (s *ChatStateService) update(ctx context.Context, event string, conversationID, userID uuid.UUID, mutate func(tx repository.Repos, p *domain.Participant) error) (*domain.Participant, error) {
	var p *domain.Participant
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		var err error
		p, err = s.resolver.ActiveParticipant(ctx, tx, conversationID, userID)
		if err != nil {
			return err
		}
		if err := mutate(tx, p); err != nil {
			return err
		}
		if err := tx.Participants().Upsert(ctx, p); err != nil {
			return fmt.Errorf("saving participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Notification{
		Type:           event,
		ConversationID: conversationID,
		Recipients:     []uuid.UUID{userID},
		Payload:        chatStatePayload(event, p),
	})
	return p, nil
}

func chatStatePayload(event string, p *domain.Participant) domain.ChatStatePayload {
	out := domain.ChatStatePayload{ConversationID: p.ConversationID}
	switch event {
	case domain.EventChatPinned:
		out.IsPinned, out.PinOrder = &p.IsPinned, &p.PinOrder
	case domain.EventChatMuted:
		out.IsMuted, out.MutedUntil = &p.IsMuted, p.MutedUntil
	case domain.EventChatArchived:
		out.IsArchived = &p.IsArchived
	case domain.EventChatCleared:
		out.ClearedAt = p.ClearedAt
	case domain.EventChatDeleted:
		out.IsDeleted = &p.IsDeleted
	}
	return out
}
