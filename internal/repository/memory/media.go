package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

type mediaRepo struct{ repos }

func (r mediaRepo) Create(_ context.Context, f *domain.MediaFile) error {
	s, done := r.enter()
	defer done()

	s.nextMediaID++
	f.ID = s.nextMediaID
	f.CreatedAt = now()
	s.media[f.MessageID] = *f
	return nil
}

func (r mediaRepo) GetByMessageID(_ context.Context, messageID int64) (*domain.MediaFile, error) {
	s, done := r.enter()
	defer done()

	f, ok := s.media[messageID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (r mediaRepo) DeleteByMessageID(_ context.Context, messageID int64) error {
	s, done := r.enter()
	defer done()

	delete(s.media, messageID)
	return nil
}

func (r mediaRepo) CountByStorageKey(_ context.Context, key string) (int, error) {
	s, done := r.enter()
	defer done()

	n := 0
	for _, f := range s.media {
		if f.StorageKey == key {
			n++
		}
	}
	return n, nil
}

func (r mediaRepo) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]domain.MediaFile, error) {
	s, done := r.enter()
	defer done()

	var out []domain.MediaFile
	for mid, f := range s.media {
		if m, ok := s.messages[mid]; ok && m.ConversationID == conversationID {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b domain.MediaFile) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}
