package memory

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

var ErrDuplicateUser = errors.New("memory: email or username already taken")

type userRepo struct{ repos }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	s, done := r.enter()
	defer done()

	for _, u := range s.users {
		if u.Email == user.Email || u.Username == user.Username {
			return ErrDuplicateUser
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s, done := r.enter()
	defer done()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == email })
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username })
}

func (r userRepo) find(match func(domain.User) bool) (*domain.User, error) {
	s, done := r.enter()
	defer done()

	for _, u := range s.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, nil
}

func (r userRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]domain.User, error) {
	s, done := r.enter()
	defer done()

	var out []domain.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r userRepo) Block(_ context.Context, blockerID, blockedID uuid.UUID) error {
	s, done := r.enter()
	defer done()

	k := pairKey{blockerID, blockedID}
	if _, ok := s.blocks[k]; !ok {
		s.blocks[k] = now()
	}
	return nil
}

func (r userRepo) Unblock(_ context.Context, blockerID, blockedID uuid.UUID) error {
	s, done := r.enter()
	defer done()

	delete(s.blocks, pairKey{blockerID, blockedID})
	return nil
}

func (r userRepo) IsBlockedEither(_ context.Context, a, b uuid.UUID) (bool, error) {
	s, done := r.enter()
	defer done()

	_, ab := s.blocks[pairKey{a, b}]
	_, ba := s.blocks[pairKey{b, a}]
	return ab || ba, nil
}

func (r userRepo) ListBlocked(_ context.Context, blockerID uuid.UUID) ([]domain.User, error) {
	s, done := r.enter()
	defer done()

	type entry struct {
		user domain.User
		key  pairKey
	}
	var entries []entry
	for k := range s.blocks {
		if k.a == blockerID {
			if u, ok := s.users[k.b]; ok {
				entries = append(entries, entry{u, k})
			}
		}
	}
	slices.SortFunc(entries, func(x, y entry) int {
		return s.blocks[y.key].Compare(s.blocks[x.key])
	})
	out := make([]domain.User, len(entries))
	for i, e := range entries {
		out[i] = e.user
	}
	return out, nil
}
