package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

type messageRepo struct{ repos }

func (r messageRepo) Create(_ context.Context, msg *domain.Message) error {
	s, done := r.enter()
	defer done()

	s.nextMessageID++
	msg.ID = s.nextMessageID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	s.messages[msg.ID] = cloneMessage(*msg)
	return nil
}

func (r messageRepo) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	s, done := r.enter()
	defer done()

	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	h := s.hydrate(m)
	return &h, nil
}

func (r messageRepo) Update(_ context.Context, msg *domain.Message) error {
	s, done := r.enter()
	defer done()

	m, ok := s.messages[msg.ID]
	if !ok {
		return nil
	}
	m.Content = msg.Content
	m.Caption = msg.Caption
	m.Status = msg.Status
	m.IsEdited = msg.IsEdited
	m.EditedAt = msg.EditedAt
	m.EditHistory = msg.EditHistory
	m.IsDeletedForEveryone = msg.IsDeletedForEveryone
	m.DeletedForEveryoneAt = msg.DeletedForEveryoneAt
	m.DeletedBy = msg.DeletedBy
	s.messages[msg.ID] = cloneMessage(m)
	return nil
}

func (r messageRepo) List(_ context.Context, params domain.ListMessagesParams) ([]domain.Message, error) {
	s, done := r.enter()
	defer done()

	var page []domain.Message
	for _, m := range s.messages {
		if m.ConversationID != params.ConversationID || m.IsDeletedFor(params.ViewerID) {
			continue
		}
		if params.ClearedAt != nil && !m.CreatedAt.After(*params.ClearedAt) {
			continue
		}
		if params.LeftAt != nil && m.CreatedAt.After(*params.LeftAt) {
			continue
		}
		if params.Direction == domain.DirectionNewer {
			if m.ID <= params.Cursor {
				continue
			}
		} else if params.Cursor > 0 && m.ID >= params.Cursor {
			continue
		}
		page = append(page, m)
	}

	byID := func(a, b domain.Message) int { return cmp.Compare(a.ID, b.ID) }
	if params.Direction == domain.DirectionNewer {
		slices.SortFunc(page, byID)
		page = truncate(page, params.Limit)
	} else {
		slices.SortFunc(page, func(a, b domain.Message) int { return byID(b, a) })
		page = truncate(page, params.Limit)
		slices.Reverse(page)
	}
	return s.hydrateAll(page), nil
}

func (r messageRepo) Search(_ context.Context, params domain.SearchMessagesParams) ([]domain.Message, error) {
	s, done := r.enter()
	defer done()

	q := strings.ToLower(strings.TrimSpace(params.Query))
	var hits []domain.Message
	for _, m := range s.messages {
		if m.ConversationID != params.ConversationID || m.Type == domain.MessageSystem ||
			m.IsDeletedForEveryone || m.IsDeletedFor(params.ViewerID) {
			continue
		}
		if params.ClearedAt != nil && !m.CreatedAt.After(*params.ClearedAt) {
			continue
		}
		if params.LeftAt != nil && m.CreatedAt.After(*params.LeftAt) {
			continue
		}
		if s.messageMatches(m, q) {
			hits = append(hits, m)
		}
	}
	slices.SortFunc(hits, func(a, b domain.Message) int { return cmp.Compare(b.ID, a.ID) })
	return s.hydrateAll(truncate(hits, params.Limit)), nil
}

func (s *state) messageMatches(m domain.Message, q string) bool {
	contains := func(v string) bool { return strings.Contains(strings.ToLower(v), q) }
	if !m.Type.IsMedia() && contains(m.Content) {
		return true
	}
	if m.Caption != nil && contains(*m.Caption) {
		return true
	}
	if f, ok := s.media[m.ID]; ok && contains(f.FileName) {
		return true
	}
	return false
}

func (r messageRepo) MarkRead(_ context.Context, conversationID, readerID uuid.UUID) ([]int64, error) {
	s, done := r.enter()
	defer done()

	var ids []int64
	for id, m := range s.messages {
		if m.ConversationID != conversationID || m.SenderID == readerID || m.Status == domain.StatusRead {
			continue
		}
		m.Status = domain.StatusRead
		s.messages[id] = m
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r messageRepo) GetReaction(_ context.Context, messageID int64, userID uuid.UUID) (*domain.Reaction, error) {
	s, done := r.enter()
	defer done()

	re, ok := s.reactions[reactionKey{messageID, userID}]
	if !ok {
		return nil, nil
	}
	return &re, nil
}

func (r messageRepo) UpsertReaction(_ context.Context, re *domain.Reaction) error {
	s, done := r.enter()
	defer done()

	s.reactions[reactionKey{re.MessageID, re.UserID}] = *re
	return nil
}

func (r messageRepo) DeleteReaction(_ context.Context, messageID int64, userID uuid.UUID) error {
	s, done := r.enter()
	defer done()

	delete(s.reactions, reactionKey{messageID, userID})
	return nil
}

func (r messageRepo) ListReactions(_ context.Context, messageID int64) ([]domain.Reaction, error) {
	s, done := r.enter()
	defer done()

	m, ok := s.messages[messageID]
	if !ok {
		return nil, nil
	}
	return s.hydrate(m).Reactions, nil
}

func (r messageRepo) SetStar(_ context.Context, messageID int64, userID uuid.UUID, starred bool) error {
	s, done := r.enter()
	defer done()

	k := reactionKey{messageID, userID}
	if !starred {
		delete(s.stars, k)
		return nil
	}
	if _, ok := s.stars[k]; !ok {
		s.stars[k] = domain.Star{MessageID: messageID, UserID: userID, StarredAt: now()}
	}
	return nil
}

func (r messageRepo) ListStarred(_ context.Context, userID uuid.UUID, limit int) ([]domain.Message, error) {
	s, done := r.enter()
	defer done()

	var starred []domain.Star
	for k, st := range s.stars {
		if k.userID != userID {
			continue
		}
		m, ok := s.messages[k.messageID]
		if !ok || m.IsDeletedForEveryone || m.IsDeletedFor(userID) {
			continue
		}
		starred = append(starred, st)
	}
	slices.SortFunc(starred, func(a, b domain.Star) int { return b.StarredAt.Compare(a.StarredAt) })
	starred = truncate(starred, limit)

	out := make([]domain.Message, len(starred))
	for i, st := range starred {
		out[i] = s.hydrate(s.messages[st.MessageID])
	}
	return out, nil
}

func (s *state) hydrateAll(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = s.hydrate(m)
	}
	return out
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
