package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

type conversationRepo struct{ repos }

func (r conversationRepo) Create(_ context.Context, conv *domain.Conversation) error {
	s, done := r.enter()
	defer done()

	if conv.DirectKey != nil {
		for _, c := range s.conversations {
			if c.DirectKey != nil && *c.DirectKey == *conv.DirectKey {
				*conv = c
				return nil
			}
		}
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now()
	}
	s.conversations[conv.ID] = *conv
	return nil
}

func (r conversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	s, done := r.enter()
	defer done()

	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r conversationRepo) GetByDirectKey(_ context.Context, key string) (*domain.Conversation, error) {
	s, done := r.enter()
	defer done()

	for _, c := range s.conversations {
		if c.DirectKey != nil && *c.DirectKey == key {
			return &c, nil
		}
	}
	return nil, nil
}

func (r conversationRepo) Update(_ context.Context, conv *domain.Conversation) error {
	s, done := r.enter()
	defer done()

	c, ok := s.conversations[conv.ID]
	if !ok {
		return nil
	}
	c.Name, c.Description, c.IconURL = conv.Name, conv.Description, conv.IconURL
	s.conversations[conv.ID] = c
	return nil
}

func (r conversationRepo) Touch(_ context.Context, id uuid.UUID, messageID int64, at time.Time) error {
	s, done := r.enter()
	defer done()

	c, ok := s.conversations[id]
	if !ok {
		return nil
	}
	c.LastMessageID = &messageID
	c.LastMessageAt = &at
	s.conversations[id] = c
	return nil
}

func (r conversationRepo) Delete(_ context.Context, id uuid.UUID) error {
	s, done := r.enter()
	defer done()

	delete(s.conversations, id)
	for k := range s.participants {
		if k.a == id {
			delete(s.participants, k)
		}
	}
	for mid, m := range s.messages {
		if m.ConversationID != id {
			continue
		}
		delete(s.messages, mid)
		delete(s.media, mid)
		for k := range s.reactions {
			if k.messageID == mid {
				delete(s.reactions, k)
			}
		}
		for k := range s.stars {
			if k.messageID == mid {
				delete(s.stars, k)
			}
		}
	}
	return nil
}

func (r conversationRepo) ListForUser(_ context.Context, params domain.ListConversationsParams) ([]domain.ConversationSummary, error) {
	s, done := r.enter()
	defer done()

	q := strings.ToLower(strings.TrimSpace(params.Query))
	var out []domain.ConversationSummary
	for k, p := range s.participants {
		if k.b != params.UserID || p.IsDeleted {
			continue
		}
		c, ok := s.conversations[k.a]
		if !ok {
			continue
		}
		sum := domain.ConversationSummary{Conversation: c, State: p}
		if c.Kind == domain.ConversationDirect {
			sum.Peer = s.peerOf(c.ID, params.UserID)
		}
		if q != "" && !summaryMatches(sum, q) {
			continue
		}
		if c.LastMessageID != nil {
			if m, ok := s.messages[*c.LastMessageID]; ok && p.CanSee(m.CreatedAt) && !m.IsDeletedFor(params.UserID) {
				h := s.hydrate(m)
				sum.LastMessage = &h
			}
		}
		out = append(out, sum)
	}

	slices.SortFunc(out, compareSummaries)

	if params.Offset >= len(out) {
		return nil, nil
	}
	out = out[params.Offset:]
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *state) peerOf(conversationID, self uuid.UUID) *domain.User {
	var fallback *domain.User
	for k := range s.participants {
		if k.a != conversationID {
			continue
		}
		u, ok := s.users[k.b]
		if !ok {
			continue
		}
		if k.b != self {
			return &u
		}
		fallback = &u
	}
	return fallback
}

func summaryMatches(sum domain.ConversationSummary, q string) bool {
	if sum.Kind == domain.ConversationGroup {
		return sum.Name != nil && strings.Contains(strings.ToLower(*sum.Name), q)
	}
	if sum.Peer == nil {
		return false
	}
	return strings.Contains(strings.ToLower(sum.Peer.Username), q) ||
		strings.Contains(strings.ToLower(sum.Peer.DisplayName), q)
}

func compareSummaries(a, b domain.ConversationSummary) int {
	if a.State.IsPinned != b.State.IsPinned {
		if a.State.IsPinned {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.State.PinOrder, b.State.PinOrder); c != 0 {
		return c
	}
	switch {
	case a.LastMessageAt != nil && b.LastMessageAt != nil:
		if c := b.LastMessageAt.Compare(*a.LastMessageAt); c != 0 {
			return c
		}
	case a.LastMessageAt != nil:
		return -1
	case b.LastMessageAt != nil:
		return 1
	}
	return b.CreatedAt.Compare(a.CreatedAt)
}
