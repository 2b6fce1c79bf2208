package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

type participantRepo struct{ repos }

func (r participantRepo) Upsert(_ context.Context, p *domain.Participant) error {
	s, done := r.enter()
	defer done()

	stored := *p
	stored.Username, stored.DisplayName = "", ""
	s.participants[pairKey{p.ConversationID, p.UserID}] = stored
	return nil
}

func (r participantRepo) Get(_ context.Context, conversationID, userID uuid.UUID) (*domain.Participant, error) {
	s, done := r.enter()
	defer done()

	p, ok := s.participants[pairKey{conversationID, userID}]
	if !ok {
		return nil, nil
	}
	s.withUser(&p)
	return &p, nil
}

func (r participantRepo) ListActive(_ context.Context, conversationID uuid.UUID) ([]domain.Participant, error) {
	s, done := r.enter()
	defer done()

	var out []domain.Participant
	for k, p := range s.participants {
		if k.a == conversationID && p.LeftAt == nil {
			s.withUser(&p)
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Participant) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return slices.Compare(a.UserID[:], b.UserID[:])
	})
	return out, nil
}

func (r participantRepo) BumpForNewMessage(_ context.Context, conversationID, senderID uuid.UUID) error {
	s, done := r.enter()
	defer done()

	for k, p := range s.participants {
		if k.a != conversationID || p.LeftAt != nil {
			continue
		}
		if k.b != senderID {
			p.UnreadCount++
		}
		p.IsDeleted = false
		s.participants[k] = p
	}
	return nil
}

func (r participantRepo) ResetUnread(_ context.Context, conversationID, userID uuid.UUID) error {
	s, done := r.enter()
	defer done()

	k := pairKey{conversationID, userID}
	if p, ok := s.participants[k]; ok {
		p.UnreadCount = 0
		s.participants[k] = p
	}
	return nil
}

func (r participantRepo) CountPinned(_ context.Context, userID uuid.UUID) (int, error) {
	s, done := r.enter()
	defer done()

	n := 0
	for k, p := range s.participants {
		if k.b == userID && p.IsPinned {
			n++
		}
	}
	return n, nil
}

func (r participantRepo) MinPinOrder(_ context.Context, userID uuid.UUID) (int, error) {
	s, done := r.enter()
	defer done()

	lowest, found := 0, false
	for k, p := range s.participants {
		if k.b == userID && p.IsPinned && (!found || p.PinOrder < lowest) {
			lowest, found = p.PinOrder, true
		}
	}
	return lowest, nil
}

func (r participantRepo) ExpireMutes(_ context.Context, at time.Time) (int64, error) {
	s, done := r.enter()
	defer done()

	var n int64
	for k, p := range s.participants {
		if p.IsMuted && p.MutedUntil != nil && !p.MutedUntil.After(at) {
			p.IsMuted = false
			p.MutedUntil = nil
			s.participants[k] = p
			n++
		}
	}
	return n, nil
}

func (s *state) withUser(p *domain.Participant) {
	if u, ok := s.users[p.UserID]; ok {
		p.Username = u.Username
		p.DisplayName = u.DisplayName
	}
}
