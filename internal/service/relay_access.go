package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/repository"
)

// RelayAccess answers the membership questions the websocket relay asks
// before forwarding ephemeral events (typing, call signaling).
type RelayAccess struct {
	store    repository.Store
	resolver *ConversationResolver
}

func NewRelayAccess(store repository.Store, resolver *ConversationResolver) *RelayAccess {
	return &RelayAccess{store: store, resolver: resolver}
}

// Peers returns the other active participants of conversationID. userID
// must be an active participant and, in a direct chat, not blocked.
func (a *RelayAccess) Peers(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error) {
	conv, err := a.resolver.ResolveAny(ctx, a.store, conversationID)
	if err != nil {
		return nil, err
	}
	active, err := a.resolver.Authorize(ctx, a.store, conv, userID)
	if err != nil {
		return nil, err
	}
	peers := make([]uuid.UUID, 0, len(active))
	for _, p := range active {
		if p.UserID != userID {
			peers = append(peers, p.UserID)
		}
	}
	return peers, nil
}

// CanSignal reports whether from may send call signaling to to.
func (a *RelayAccess) CanSignal(ctx context.Context, from, to uuid.UUID) error {
	if from == to {
		return ErrInvalidTarget
	}
	user, err := a.store.Users().GetByID(ctx, to)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	blocked, err := a.store.Users().IsBlockedEither(ctx, from, to)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlocked
	}
	return nil
}
