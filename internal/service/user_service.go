package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository"
)

type UserService struct {
	store repository.Store
}

func NewUserService(store repository.Store) *UserService {
	return &UserService{store: store}
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Block is idempotent. Existing direct conversations stay, but neither
// side can send into them until the block is lifted.
func (s *UserService) Block(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	if blockerID == blockedID {
		return ErrCannotBlockSelf
	}
	return s.store.WithTx(ctx, func(tx repository.Repos) error {
		target, err := tx.Users().GetByID(ctx, blockedID)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrUserNotFound
		}
		if err := tx.Users().Block(ctx, blockerID, blockedID); err != nil {
			return fmt.Errorf("blocking user: %w", err)
		}
		return nil
	})
}

func (s *UserService) Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Repos) error {
		if err := tx.Users().Unblock(ctx, blockerID, blockedID); err != nil {
			return fmt.Errorf("unblocking user: %w", err)
		}
		return nil
	})
}

func (s *UserService) ListBlocked(ctx context.Context, userID uuid.UUID) ([]domain.User, error) {
	users, err := s.store.Users().ListBlocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}
