package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/blob"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository"
	"go.uber.org/zap"
)

type GroupService struct {
	notifierRef
	store    repository.Store
	resolver *ConversationResolver
	blobs    blob.Store
	log      *zap.Logger
	now      func() time.Time
}

func NewGroupService(store repository.Store, resolver *ConversationResolver, blobs blob.Store, log *zap.Logger) *GroupService {
	return &GroupService{
		store:    store,
		resolver: resolver,
		blobs:    blobs,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateGroupInput struct {
	CreatorID   uuid.UUID
	Name        string
	Description *string
	IconURL     *string
	MemberIDs   []uuid.UUID
}

type UpdateGroupInput struct {
	Name        *string
	Description *string
	IconURL     *string
}

type GroupDetails struct {
	Conversation *domain.Conversation `json:"conversation"`
	Members      []domain.Participant `json:"members"`
}

// CreateGroup creates a group whose creator is the only admin.
func (s *GroupService) CreateGroup(ctx context.Context, input CreateGroupInput) (*GroupDetails, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrGroupNameRequired
	}
	memberIDs := dedupe(append([]uuid.UUID{input.CreatorID}, input.MemberIDs...))
	if len(memberIDs) < domain.MinGroupMembers || len(memberIDs) > domain.MaxGroupMembers {
		return nil, ErrGroupSize
	}

	var details *GroupDetails
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		users, err := tx.Users().ListByIDs(ctx, memberIDs)
		if err != nil {
			return err
		}
		if len(users) != len(memberIDs) {
			return ErrUserNotFound
		}

		now := s.now()
		creator := input.CreatorID
		conv := &domain.Conversation{
			ID:          uuid.New(),
			Kind:        domain.ConversationGroup,
			Name:        &name,
			Description: input.Description,
			IconURL:     input.IconURL,
			CreatorID:   &creator,
			CreatedAt:   now,
		}
		if err := tx.Conversations().Create(ctx, conv); err != nil {
			return fmt.Errorf("creating group: %w", err)
		}

		// joined_at is staggered so tenure order follows the member list
		for i, userID := range memberIDs {
			role := domain.RoleMember
			if userID == input.CreatorID {
				role = domain.RoleAdmin
			}
			p := &domain.Participant{
				ConversationID: conv.ID,
				UserID:         userID,
				Role:           role,
				JoinedAt:       now.Add(time.Duration(i) * time.Microsecond),
			}
			if err := tx.Participants().Upsert(ctx, p); err != nil {
				return fmt.Errorf("adding member: %w", err)
			}
		}

		text := fmt.Sprintf("%s created the group %q", displayName(users, input.CreatorID), name)
		if err := s.systemMessage(ctx, tx, conv.ID, input.CreatorID, text); err != nil {
			return err
		}

		members, err := tx.Participants().ListActive(ctx, conv.ID)
		if err != nil {
			return err
		}
		details = &GroupDetails{Conversation: conv, Members: members}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Notification{
		Type:           domain.EventGroupCreated,
		ConversationID: details.Conversation.ID,
		Recipients:     userIDs(details.Members),
		Payload:        domain.GroupPayload{Conversation: details.Conversation, Members: details.Members},
	})
	return details, nil
}

func (s *GroupService) Get(ctx context.Context, groupID, userID uuid.UUID) (*GroupDetails, error) {
	conv, err := s.resolver.ResolveGroup(ctx, s.store, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Participant(ctx, s.store, groupID, userID); err != nil {
		return nil, err
	}
	members, err := s.store.Participants().ListActive(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &GroupDetails{Conversation: conv, Members: members}, nil
}

// AddMembers adds users or reactivates users who had left.
func (s *GroupService) AddMembers(ctx context.Context, groupID, actorID uuid.UUID, userIDsToAdd []uuid.UUID) (*GroupDetails, error) {
	var (
		details *GroupDetails
		added   []uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		conv, active, err := s.adminContext(ctx, tx, groupID, actorID)
		if err != nil {
			return err
		}

		for _, id := range dedupe(userIDsToAdd) {
			if !containsUser(active, id) {
				added = append(added, id)
			}
		}
		if len(added) == 0 {
			details = &GroupDetails{Conversation: conv, Members: active}
			return nil
		}
		if len(active)+len(added) > domain.MaxGroupMembers {
			return ErrGroupFull
		}

		users, err := tx.Users().ListByIDs(ctx, append([]uuid.UUID{actorID}, added...))
		if err != nil {
			return err
		}
		if len(users) != len(added)+1 {
			return ErrUserNotFound
		}

		now := s.now()
		for i, id := range added {
			p, err := tx.Participants().Get(ctx, groupID, id)
			if err != nil {
				return err
			}
			if p == nil {
				p = &domain.Participant{ConversationID: groupID, UserID: id}
			}
			p.Role = domain.RoleMember
			p.LeftAt = nil
			p.IsDeleted = false
			p.UnreadCount = 0
			p.JoinedAt = now.Add(time.Duration(i) * time.Microsecond)
			if err := tx.Participants().Upsert(ctx, p); err != nil {
				return fmt.Errorf("adding member: %w", err)
			}
		}

		text := fmt.Sprintf("%s added %s", displayName(users, actorID), displayNames(users, added))
		if err := s.systemMessage(ctx, tx, groupID, actorID, text); err != nil {
			return err
		}

		members, err := tx.Participants().ListActive(ctx, groupID)
		if err != nil {
			return err
		}
		details = &GroupDetails{Conversation: conv, Members: members}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(added) > 0 {
		s.notify(Notification{
			Type:           domain.EventGroupMembersUpdated,
			ConversationID: groupID,
			Recipients:     userIDs(details.Members),
			Payload: domain.GroupMembersPayload{
				ConversationID: groupID,
				Added:          added,
				Members:        details.Members,
			},
		})
	}
	return details, nil
}

func (s *GroupService) RemoveMembers(ctx context.Context, groupID, actorID uuid.UUID, userIDsToRemove []uuid.UUID) (*GroupDetails, error) {
	removed := dedupe(userIDsToRemove)
	for _, id := range removed {
		if id == actorID {
			return nil, ErrCannotRemoveSelf
		}
	}

	var details *GroupDetails
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		conv, active, err := s.adminContext(ctx, tx, groupID, actorID)
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			details = &GroupDetails{Conversation: conv, Members: active}
			return nil
		}

		now := s.now()
		for _, id := range removed {
			p := findParticipant(active, id)
			if p == nil {
				return ErrMemberNotFound
			}
			p.LeftAt = &now
			p.Role = domain.RoleMember
			p.IsPinned, p.PinOrder = false, 0
			if err := tx.Participants().Upsert(ctx, p); err != nil {
				return fmt.Errorf("removing member: %w", err)
			}
		}

		users, err := tx.Users().ListByIDs(ctx, append([]uuid.UUID{actorID}, removed...))
		if err != nil {
			return err
		}
		text := fmt.Sprintf("%s removed %s", displayName(users, actorID), displayNames(users, removed))
		if err := s.systemMessage(ctx, tx, groupID, actorID, text); err != nil {
			return err
		}

		members, err := tx.Participants().ListActive(ctx, groupID)
		if err != nil {
			return err
		}
		details = &GroupDetails{Conversation: conv, Members: members}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(removed) > 0 {
		s.notify(Notification{
			Type:           domain.EventGroupMembersUpdated,
			ConversationID: groupID,
			Recipients:     append(userIDs(details.Members), removed...),
			Payload: domain.GroupMembersPayload{
				ConversationID: groupID,
				Removed:        removed,
				Members:        details.Members,
			},
		})
	}
	return details, nil
}

// UpdateRole refuses to leave the group without an admin.
func (s *GroupService) UpdateRole(ctx context.Context, groupID, actorID, targetID uuid.UUID, role domain.ParticipantRole) (*domain.Participant, error) {
	if role != domain.RoleAdmin && role != domain.RoleMember {
		return nil, ErrInvalidRole
	}

	var (
		target     *domain.Participant
		recipients []uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		_, active, err := s.adminContext(ctx, tx, groupID, actorID)
		if err != nil {
			return err
		}
		target = findParticipant(active, targetID)
		if target == nil {
			return ErrMemberNotFound
		}
		if target.Role == domain.RoleAdmin && role == domain.RoleMember && countAdmins(active) == 1 {
			return ErrLastAdmin
		}
		target.Role = role
		if err := tx.Participants().Upsert(ctx, target); err != nil {
			return fmt.Errorf("updating role: %w", err)
		}
		recipients = userIDs(active)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Notification{
		Type:           domain.EventGroupRoleUpdated,
		ConversationID: groupID,
		Recipients:     recipients,
		Payload:        domain.GroupRolePayload{ConversationID: groupID, UserID: targetID, Role: role},
	})
	return target, nil
}

func (s *GroupService) UpdateInfo(ctx context.Context, groupID, actorID uuid.UUID, input UpdateGroupInput) (*domain.Conversation, error) {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrGroupNameRequired
		}
		input.Name = &name
	}

	var (
		conv       *domain.Conversation
		recipients []uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		var (
			active []domain.Participant
			err    error
		)
		conv, active, err = s.adminContext(ctx, tx, groupID, actorID)
		if err != nil {
			return err
		}
		if input.Name != nil {
			conv.Name = input.Name
		}
		if input.Description != nil {
			conv.Description = input.Description
		}
		if input.IconURL != nil {
			conv.IconURL = input.IconURL
		}
		if err := tx.Conversations().Update(ctx, conv); err != nil {
			return fmt.Errorf("updating group: %w", err)
		}
		recipients = userIDs(active)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Notification{
		Type:           domain.EventGroupUpdated,
		ConversationID: groupID,
		Recipients:     recipients,
		Payload:        domain.GroupPayload{Conversation: conv},
	})
	return conv, nil
}

// LeaveGroup ends the user's membership. When the last admin leaves, the
// longest-tenured remaining member is promoted first.
func (s *GroupService) LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) (*GroupDetails, error) {
	var (
		details  *GroupDetails
		promoted *uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		conv, err := s.resolver.ResolveGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		leaver, err := s.resolver.ActiveParticipant(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		active, err := tx.Participants().ListActive(ctx, groupID)
		if err != nil {
			return err
		}

		if leaver.Role == domain.RoleAdmin && countAdmins(active) == 1 {
			// ListActive is ordered by joined_at
			for i := range active {
				if active[i].UserID == userID {
					continue
				}
				heir := active[i]
				heir.Role = domain.RoleAdmin
				if err := tx.Participants().Upsert(ctx, &heir); err != nil {
					return fmt.Errorf("promoting member: %w", err)
				}
				promoted = &heir.UserID
				break
			}
		}

		now := s.now()
		leaver.LeftAt = &now
		leaver.Role = domain.RoleMember
		leaver.IsPinned, leaver.PinOrder = false, 0
		if err := tx.Participants().Upsert(ctx, leaver); err != nil {
			return fmt.Errorf("leaving group: %w", err)
		}

		users, err := tx.Users().ListByIDs(ctx, []uuid.UUID{userID})
		if err != nil {
			return err
		}
		text := fmt.Sprintf("%s left", displayName(users, userID))
		if err := s.systemMessage(ctx, tx, groupID, userID, text); err != nil {
			return err
		}

		members, err := tx.Participants().ListActive(ctx, groupID)
		if err != nil {
			return err
		}
		details = &GroupDetails{Conversation: conv, Members: members}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Notification{
		Type:           domain.EventGroupMembersUpdated,
		ConversationID: groupID,
		Recipients:     append(userIDs(details.Members), userID),
		Payload: domain.GroupMembersPayload{
			ConversationID: groupID,
			Left:           &userID,
			Promoted:       promoted,
			Members:        details.Members,
		},
	})
	return details, nil
}

// DeleteGroup removes the group with all of its messages. Blobs no longer
// referenced by any media row are released after commit.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID, actorID uuid.UUID) error {
	var (
		recipients []uuid.UUID
		released   []domain.MediaFile
	)
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		_, active, err := s.adminContext(ctx, tx, groupID, actorID)
		if err != nil {
			return err
		}
		media, err := tx.Media().ListByConversation(ctx, groupID)
		if err != nil {
			return err
		}
		if err := tx.Conversations().Delete(ctx, groupID); err != nil {
			return fmt.Errorf("deleting group: %w", err)
		}

		seen := make(map[string]bool)
		for _, f := range media {
			if seen[f.StorageKey] {
				continue
			}
			seen[f.StorageKey] = true
			refs, err := tx.Media().CountByStorageKey(ctx, f.StorageKey)
			if err != nil {
				return err
			}
			if refs == 0 {
				released = append(released, f)
			}
		}
		recipients = userIDs(active)
		return nil
	})
	if err != nil {
		return err
	}

	for _, f := range released {
		releaseBlob(s.blobs, s.log, f.StorageKey, f.ResourceType)
	}
	s.notify(Notification{
		Type:           domain.EventGroupDeleted,
		ConversationID: groupID,
		Recipients:     recipients,
		Payload:        domain.GroupDeletedPayload{ConversationID: groupID, DeletedBy: actorID},
	})
	return nil
}

// adminContext loads the group and its active members and asserts actorID
// is one of its admins.
func (s *GroupService) adminContext(ctx context.Context, tx repository.Repos, groupID, actorID uuid.UUID) (*domain.Conversation, []domain.Participant, error) {
	conv, err := s.resolver.ResolveGroup(ctx, tx, groupID)
	if err != nil {
		return nil, nil, err
	}
	actor, err := s.resolver.ActiveParticipant(ctx, tx, groupID, actorID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsAdmin() {
		return nil, nil, ErrNotAdmin
	}
	active, err := tx.Participants().ListActive(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	return conv, active, nil
}

func (s *GroupService) systemMessage(ctx context.Context, tx repository.Repos, groupID, actorID uuid.UUID, text string) error {
	msg, err := domain.NewMessage(groupID, actorID, domain.SystemBody{Text: text})
	if err != nil {
		return err
	}
	msg.CreatedAt = s.now()
	return insertMessage(ctx, tx, msg, nil)
}

func containsUser(ps []domain.Participant, userID uuid.UUID) bool {
	return findParticipant(ps, userID) != nil
}

func findParticipant(ps []domain.Participant, userID uuid.UUID) *domain.Participant {
	for i := range ps {
		if ps[i].UserID == userID {
			p := ps[i]
			return &p
		}
	}
	return nil
}

func countAdmins(ps []domain.Participant) int {
	n := 0
	for _, p := range ps {
		if p.Role == domain.RoleAdmin {
			n++
		}
	}
	return n
}

func displayName(users []domain.User, id uuid.UUID) string {
	for _, u := range users {
		if u.ID == id {
			if u.DisplayName != "" {
				return u.DisplayName
			}
			return u.Username
		}
	}
	return "someone"
}

func displayNames(users []domain.User, ids []uuid.UUID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = displayName(users, id)
	}
	return strings.Join(names, ", ")
}
