// Package memory is an in-process repository.Store. A transaction holds the
// store lock for its whole duration and restores a snapshot on error.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository"
)

type pairKey struct {
	a, b uuid.UUID
}

type reactionKey struct {
	messageID int64
	userID    uuid.UUID
}

type state struct {
	users         map[uuid.UUID]domain.User
	blocks        map[pairKey]time.Time
	conversations map[uuid.UUID]domain.Conversation
	participants  map[pairKey]domain.Participant
	messages      map[int64]domain.Message
	reactions     map[reactionKey]domain.Reaction
	stars         map[reactionKey]domain.Star
	media         map[int64]domain.MediaFile

	nextMessageID int64
	nextMediaID   int64
}

func newState() *state {
	return &state{
		users:         make(map[uuid.UUID]domain.User),
		blocks:        make(map[pairKey]time.Time),
		conversations: make(map[uuid.UUID]domain.Conversation),
		participants:  make(map[pairKey]domain.Participant),
		messages:      make(map[int64]domain.Message),
		reactions:     make(map[reactionKey]domain.Reaction),
		stars:         make(map[reactionKey]domain.Star),
		media:         make(map[int64]domain.MediaFile),
	}
}

// clone is shallow per map. Stored values are never mutated in place, only
// replaced, so sharing them with the snapshot is safe.
func (s *state) clone() *state {
	return &state{
		users:         maps.Clone(s.users),
		blocks:        maps.Clone(s.blocks),
		conversations: maps.Clone(s.conversations),
		participants:  maps.Clone(s.participants),
		messages:      maps.Clone(s.messages),
		reactions:     maps.Clone(s.reactions),
		stars:         maps.Clone(s.stars),
		media:         maps.Clone(s.media),
		nextMessageID: s.nextMessageID,
		nextMediaID:   s.nextMediaID,
	}
}

type Store struct {
	mu   sync.Mutex
	data *state
	repos
}

func NewStore() *Store {
	s := &Store{data: newState()}
	s.repos = repos{store: s}
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(repos{store: s, inTx: true}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// repos is bound either to the bare store (each call locks) or to a running
// transaction (the lock is already held).
type repos struct {
	store *Store
	inTx  bool
}

func (r repos) Users() repository.UserRepository                 { return userRepo{r} }
func (r repos) Conversations() repository.ConversationRepository { return conversationRepo{r} }
func (r repos) Participants() repository.ParticipantRepository   { return participantRepo{r} }
func (r repos) Messages() repository.MessageRepository           { return messageRepo{r} }
func (r repos) Media() repository.MediaRepository                { return mediaRepo{r} }

// enter returns the live state and the matching release func.
func (r repos) enter() (*state, func()) {
	if r.inTx {
		return r.store.data, func() {}
	}
	r.store.mu.Lock()
	return r.store.data, r.store.mu.Unlock
}

func cloneMessage(m domain.Message) domain.Message {
	m.DeletedBy = slices.Clone(m.DeletedBy)
	m.EditHistory = slices.Clone(m.EditHistory)
	m.Reactions = nil
	m.StarredBy = nil
	m.Media = nil
	if m.Caption != nil {
		c := *m.Caption
		m.Caption = &c
	}
	if m.QuotedMessage != nil {
		q := *m.QuotedMessage
		m.QuotedMessage = &q
	}
	return m
}

// hydrate returns a detached copy of m with reactions, stars and media.
func (s *state) hydrate(m domain.Message) domain.Message {
	out := cloneMessage(m)
	for k, re := range s.reactions {
		if k.messageID == m.ID {
			out.Reactions = append(out.Reactions, re)
		}
	}
	slices.SortFunc(out.Reactions, func(a, b domain.Reaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.UserID[:], b.UserID[:])
	})
	for k, st := range s.stars {
		if k.messageID == m.ID {
			out.StarredBy = append(out.StarredBy, st)
		}
	}
	slices.SortFunc(out.StarredBy, func(a, b domain.Star) int {
		return a.StarredAt.Compare(b.StarredAt)
	})
	if f, ok := s.media[m.ID]; ok {
		out.Media = &f
	}
	return out
}

func now() time.Time {
	return time.Now().UTC()
}
