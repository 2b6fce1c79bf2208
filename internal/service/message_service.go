package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/blob"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/metrics"
	"github.com/vedran77/pulsechat/internal/repository"
	"go.uber.org/zap"
)

type MessageService struct {
	notifierRef
	store    repository.Store
	resolver *ConversationResolver
	blobs    blob.Store
	log      *zap.Logger
	now      func() time.Time
}

func NewMessageService(store repository.Store, resolver *ConversationResolver, blobs blob.Store, log *zap.Logger) *MessageService {
	return &MessageService{
		store:    store,
		resolver: resolver,
		blobs:    blobs,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type SendMessageInput struct {
	SenderID         uuid.UUID
	RecipientID      *uuid.UUID
	ConversationID   *uuid.UUID
	Body             domain.Body
	ReplyToMessageID *int64
	ClientTempID     string
	// Media is attached to the new message inside the same transaction.
	Media *domain.MediaFile
}

type SendMediaInput struct {
	SenderID         uuid.UUID
	RecipientID      *uuid.UUID
	ConversationID   *uuid.UUID
	Kind             domain.MessageType
	Caption          string
	ReplyToMessageID *int64
	ClientTempID     string
	Data             []byte
	MimeType         string
	FileName         string
	Width            *int
	Height           *int
	DurationSeconds  *float64
}

type ListMessagesInput struct {
	ConversationID uuid.UUID
	ViewerID       uuid.UUID
	Cursor         string
	Limit          int
	Direction      domain.Direction
	MarkRead       bool
}

type MessageListResponse struct {
	Messages   []domain.Message `json:"messages"`
	HasMore    bool             `json:"has_more"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type ReactResult struct {
	MessageID int64                 `json:"message_id"`
	Emoji     string                `json:"emoji"`
	Action    domain.ReactionAction `json:"action"`
	Reactions []domain.Reaction     `json:"reactions"`
}

type ForwardInput struct {
	MessageIDs      []int64
	ConversationIDs []uuid.UUID
	RequesterID     uuid.UUID
}

// Send persists a new message and fans it out to the conversation.
func (s *MessageService) Send(ctx context.Context, input SendMessageInput) (*domain.Message, error) {
	if (input.RecipientID == nil) == (input.ConversationID == nil) {
		return nil, ErrInvalidTarget
	}
	msg, err := domain.NewMessage(uuid.Nil, input.SenderID, input.Body)
	if err != nil {
		return nil, invalidInput(err)
	}
	if input.ReplyToMessageID != nil {
		if err := CheckMessageID(*input.ReplyToMessageID); err != nil {
			return nil, err
		}
	}

	var (
		recipients []uuid.UUID
		kind       domain.ConversationKind
	)
	err = s.store.WithTx(ctx, func(tx repository.Repos) error {
		conv, err := s.resolveTarget(ctx, tx, input)
		if err != nil {
			return err
		}
		kind = conv.Kind
		active, err := s.resolver.Authorize(ctx, tx, conv, input.SenderID)
		if err != nil {
			return err
		}
		msg.ConversationID = conv.ID

		if input.ReplyToMessageID != nil {
			target, err := tx.Messages().GetByID(ctx, *input.ReplyToMessageID)
			if err != nil {
				return err
			}
			if target == nil {
				return ErrReplyNotFound
			}
			if target.ConversationID != conv.ID {
				return ErrInvalidReply
			}
			sender := findParticipant(active, input.SenderID)
			if target.IsDeletedForEveryone || sender == nil || !visibleTo(sender, target) {
				return ErrReplyNotFound
			}
			msg.ReplyToMessageID = &target.ID
			msg.QuotedMessage = target.Quote()
		}

		msg.Status = s.initialStatus(active, input.SenderID)
		if err := insertMessage(ctx, tx, msg, input.Media); err != nil {
			return err
		}
		recipients = userIDs(active)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesCreated.WithLabelValues(string(msg.Type)).Inc()
	s.notify(Notification{
		Type:           domain.EventMessageSent,
		ConversationID: msg.ConversationID,
		Recipients:     recipients,
		Payload:        domain.MessageSentPayload{Message: msg, ConversationKind: kind, ClientTempID: input.ClientTempID},
	})
	return msg, nil
}

// SendMedia uploads the blob first and sends the media message afterwards.
// The blob is deleted again if the message cannot be persisted.
func (s *MessageService) SendMedia(ctx context.Context, input SendMediaInput) (*domain.Message, error) {
	if !input.Kind.IsMedia() {
		return nil, ErrNotMediaType
	}
	if (input.RecipientID == nil) == (input.ConversationID == nil) {
		return nil, ErrInvalidTarget
	}

	resourceType := domain.ResourceTypeFor(input.Kind)
	uploaded, err := s.blobs.Upload(ctx, input.Data, blob.UploadOptions{
		ResourceType:    resourceType,
		Folder:          "chat/" + string(input.Kind),
		MimeType:        input.MimeType,
		FileName:        input.FileName,
		DurationSeconds: input.DurationSeconds,
	})
	if err != nil {
		s.log.Error("media_upload_failed", zap.String("kind", string(input.Kind)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	if input.Kind == domain.MessageVideo && uploaded.DurationSeconds != nil &&
		time.Duration(*uploaded.DurationSeconds*float64(time.Second)) > domain.MaxVideoLength {
		s.releaseBlob(uploaded.PublicID, resourceType)
		return nil, ErrVideoTooLong
	}

	media := &domain.MediaFile{
		StorageKey:      uploaded.PublicID,
		URL:             uploaded.SecureURL,
		ResourceType:    resourceType,
		MimeType:        input.MimeType,
		FileName:        input.FileName,
		SizeBytes:       uploaded.Bytes,
		Width:           input.Width,
		Height:          input.Height,
		DurationSeconds: uploaded.DurationSeconds,
	}
	msg, err := s.Send(ctx, SendMessageInput{
		SenderID:         input.SenderID,
		RecipientID:      input.RecipientID,
		ConversationID:   input.ConversationID,
		Body:             domain.MediaBody{Kind: input.Kind, URL: uploaded.SecureURL, Caption: input.Caption, FileName: input.FileName},
		ReplyToMessageID: input.ReplyToMessageID,
		ClientTempID:     input.ClientTempID,
		Media:            media,
	})
	if err != nil {
		s.releaseBlob(uploaded.PublicID, resourceType)
		return nil, err
	}
	return msg, nil
}

// Edit replaces the text of a text message or the caption of a media message.
func (s *MessageService) Edit(ctx context.Context, messageID int64, newContent string, requesterID uuid.UUID) (*domain.Message, error) {
	if err := CheckMessageID(messageID); err != nil {
		return nil, err
	}

	var (
		msg        *domain.Message
		recipients []uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		var err error
		msg, err = s.loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if msg.SenderID != requesterID {
			return ErrNotMessageOwner
		}
		if msg.IsDeletedForEveryone {
			return ErrMessageDeleted
		}
		now := s.now()
		if now.Sub(msg.CreatedAt) > domain.EditWindow {
			return ErrEditWindowExpired
		}

		switch {
		case msg.Type == domain.MessageText:
			if err := (domain.TextBody{Text: newContent}).Validate(); err != nil {
				return invalidInput(err)
			}
			msg.EditHistory = append(msg.EditHistory, domain.EditRecord{Content: msg.Content, EditedAt: now})
			msg.Content = newContent
		case msg.Type.IsMedia():
			if len(newContent) > domain.MaxContentLen {
				return invalidInput(domain.ErrContentTooLong)
			}
			prior := ""
			if msg.Caption != nil {
				prior = *msg.Caption
			}
			msg.EditHistory = append(msg.EditHistory, domain.EditRecord{Content: prior, EditedAt: now})
			msg.Caption = nil
			if newContent != "" {
				msg.Caption = &newContent
			}
		default:
			return ErrNotEditable
		}
		msg.IsEdited = true
		msg.EditedAt = &now

		if err := tx.Messages().Update(ctx, msg); err != nil {
			return fmt.Errorf("updating message: %w", err)
		}
		active, err := tx.Participants().ListActive(ctx, msg.ConversationID)
		if err != nil {
			return err
		}
		recipients = userIDs(active)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Notification{
		Type:           domain.EventMessageEdited,
		ConversationID: msg.ConversationID,
		Recipients:     recipients,
		Payload: domain.MessageEditedPayload{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			NewContent:     newContent,
			EditedAt:       *msg.EditedAt,
		},
	})
	return msg, nil
}

// Delete hides a message for the requester (forMe) or retracts it for all
// participants (forEveryone). Both are idempotent.
func (s *MessageService) Delete(ctx context.Context, messageID int64, deleteType domain.DeleteType, requesterID uuid.UUID) error {
	if err := CheckMessageID(messageID); err != nil {
		return err
	}
	switch deleteType {
	case domain.DeleteForMe:
		return s.deleteForMe(ctx, messageID, requesterID)
	case domain.DeleteForEveryone:
		return s.deleteForEveryone(ctx, messageID, requesterID)
	}
	return ErrInvalidDeleteType
}

func (s *MessageService) deleteForMe(ctx context.Context, messageID int64, requesterID uuid.UUID) error {
	var msg *domain.Message
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		var err error
		msg, err = s.loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		p, err := s.resolver.Participant(ctx, tx, msg.ConversationID, requesterID)
		if err != nil {
			return err
		}
		if msg.IsDeletedFor(requesterID) {
			return nil
		}
		if !visibleTo(p, msg) {
			return ErrMessageNotFound
		}
		msg.MarkDeletedFor(requesterID)
		return tx.Messages().Update(ctx, msg)
	})
	if err != nil {
		return err
	}

	s.notify(Notification{
		Type:           domain.EventMessageDeleted,
		ConversationID: msg.ConversationID,
		Recipients:     []uuid.UUID{requesterID},
		Payload: domain.MessageDeletedPayload{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			DeleteType:     domain.DeleteForMe,
			DeletedBy:      &requesterID,
		},
	})
	return nil
}

func (s *MessageService) deleteForEveryone(ctx context.Context, messageID int64, requesterID uuid.UUID) error {
	var (
		msg        *domain.Message
		recipients []uuid.UUID
		released   *domain.MediaFile
		changed    bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		var err error
		msg, err = s.loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if msg.SenderID != requesterID {
			return ErrNotMessageOwner
		}
		if msg.IsDeletedForEveryone {
			return nil
		}
		now := s.now()
		if now.Sub(msg.CreatedAt) > domain.DeletionWindow {
			return ErrDeletionWindowExpired
		}

		msg.IsDeletedForEveryone = true
		msg.DeletedForEveryoneAt = &now
		msg.Content = ""
		msg.Caption = nil
		if err := tx.Messages().Update(ctx, msg); err != nil {
			return fmt.Errorf("updating message: %w", err)
		}

		media, err := tx.Media().GetByMessageID(ctx, msg.ID)
		if err != nil {
			return err
		}
		if media != nil {
			if err := tx.Media().DeleteByMessageID(ctx, msg.ID); err != nil {
				return err
			}
			refs, err := tx.Media().CountByStorageKey(ctx, media.StorageKey)
			if err != nil {
				return err
			}
			if refs == 0 {
				released = media
			}
		}

		active, err := tx.Participants().ListActive(ctx, msg.ConversationID)
		if err != nil {
			return err
		}
		recipients = userIDs(active)
		changed = true
		return nil
	})
	if err != nil || !changed {
		return err
	}

	if released != nil {
		s.releaseBlob(released.StorageKey, released.ResourceType)
	}
	s.notify(Notification{
		Type:           domain.EventMessageDeleted,
		ConversationID: msg.ConversationID,
		Recipients:     recipients,
		Payload: domain.MessageDeletedPayload{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			DeleteType:     domain.DeleteForEveryone,
			DeletedBy:      &requesterID,
		},
	})
	return nil
}

// React toggles the requester's reaction: add, remove on the same emoji, or
// replace a different one.
func (s *MessageService) React(ctx context.Context, messageID int64, emoji string, requesterID uuid.UUID) (*ReactResult, error) {
	if err := CheckMessageID(messageID); err != nil {
		return nil, err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, ErrInvalidEmoji
	}

	var (
		msg        *domain.Message
		result     = &ReactResult{MessageID: messageID, Emoji: emoji}
		recipients []uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		var (
			active []domain.Participant
			err    error
		)
		msg, active, err = s.authorizeMessage(ctx, tx, messageID, requesterID)
		if err != nil {
			return err
		}

		existing, err := tx.Messages().GetReaction(ctx, messageID, requesterID)
		if err != nil {
			return err
		}
		switch {
		case existing == nil:
			result.Action = domain.ReactionAdded
		case existing.Emoji == emoji:
			result.Action = domain.ReactionRemoved
		default:
			result.Action = domain.ReactionUpdated
		}

		if result.Action == domain.ReactionRemoved {
			err = tx.Messages().DeleteReaction(ctx, messageID, requesterID)
		} else {
			err = tx.Messages().UpsertReaction(ctx, &domain.Reaction{
				MessageID: messageID,
				UserID:    requesterID,
				Emoji:     emoji,
				CreatedAt: s.now(),
			})
		}
		if err != nil {
			return fmt.Errorf("saving reaction: %w", err)
		}

		result.Reactions, err = tx.Messages().ListReactions(ctx, messageID)
		if err != nil {
			return err
		}
		recipients = userIDs(active)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Reactions == nil {
		result.Reactions = []domain.Reaction{}
	}

	s.notify(Notification{
		Type:           domain.EventMessageReacted,
		ConversationID: msg.ConversationID,
		Recipients:     recipients,
		Payload: domain.MessageReactedPayload{
			MessageID:      messageID,
			ConversationID: msg.ConversationID,
			Emoji:          emoji,
			UserID:         requesterID,
			Action:         result.Action,
			Reactions:      result.Reactions,
		},
	})
	return result, nil
}

// Star adds or removes the message from the requester's starred set.
func (s *MessageService) Star(ctx context.Context, messageID int64, starred bool, requesterID uuid.UUID) (*domain.Message, error) {
	if err := CheckMessageID(messageID); err != nil {
		return nil, err
	}

	var msg *domain.Message
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		if _, _, err := s.authorizeMessage(ctx, tx, messageID, requesterID); err != nil {
			return err
		}
		if err := tx.Messages().SetStar(ctx, messageID, requesterID, starred); err != nil {
			return fmt.Errorf("saving star: %w", err)
		}
		var err error
		msg, err = tx.Messages().GetByID(ctx, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(Notification{
		Type:           domain.EventMessageStarred,
		ConversationID: msg.ConversationID,
		Recipients:     []uuid.UUID{requesterID},
		Payload: domain.MessageStarredPayload{
			MessageID:      messageID,
			ConversationID: msg.ConversationID,
			Starred:        starred,
		},
	})
	return msg, nil
}

func (s *MessageService) ListStarred(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Message, error) {
	msgs, err := s.store.Messages().ListStarred(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// Forward copies every source message into every destination conversation
// in one transaction.
func (s *MessageService) Forward(ctx context.Context, input ForwardInput) ([]domain.Message, error) {
	sources := dedupe(input.MessageIDs)
	targets := dedupe(input.ConversationIDs)
	if len(sources) == 0 || len(sources) > domain.MaxForwardSet ||
		len(targets) == 0 || len(targets) > domain.MaxForwardSet {
		return nil, ErrForwardSetSize
	}
	for _, id := range sources {
		if err := CheckMessageID(id); err != nil {
			return nil, err
		}
	}

	type delivery struct {
		msg        *domain.Message
		kind       domain.ConversationKind
		recipients []uuid.UUID
	}
	var deliveries []delivery

	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		originals := make([]*domain.Message, 0, len(sources))
		for _, id := range sources {
			src, err := s.loadMessage(ctx, tx, id)
			if err != nil {
				return err
			}
			p, err := s.resolver.ActiveParticipant(ctx, tx, src.ConversationID, input.RequesterID)
			if err != nil {
				return err
			}
			if src.IsDeletedForEveryone {
				return ErrMessageDeleted
			}
			if !visibleTo(p, src) {
				return ErrMessageNotFound
			}
			if src.Type == domain.MessageSystem {
				return ErrNotForwardable
			}
			originals = append(originals, src)
		}

		for _, convID := range targets {
			conv, err := s.resolver.ResolveAny(ctx, tx, convID)
			if err != nil {
				return err
			}
			active, err := s.resolver.Authorize(ctx, tx, conv, input.RequesterID)
			if err != nil {
				return err
			}

			for _, src := range originals {
				copied := &domain.Message{
					ConversationID:    conv.ID,
					SenderID:          input.RequesterID,
					Type:              src.Type,
					Content:           src.Content,
					Caption:           src.Caption,
					Status:            s.initialStatus(active, input.RequesterID),
					IsForwarded:       true,
					OriginalMessageID: src.OriginalMessageID,
					ForwardCount:      src.ForwardCount + 1,
				}
				if copied.OriginalMessageID == nil {
					root := src.ID
					copied.OriginalMessageID = &root
				}
				var media *domain.MediaFile
				if src.Media != nil {
					media = src.Media.Clone(0)
				}
				if err := insertMessage(ctx, tx, copied, media); err != nil {
					return err
				}
				deliveries = append(deliveries, delivery{msg: copied, kind: conv.Kind, recipients: userIDs(active)})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(deliveries))
	for _, d := range deliveries {
		metrics.MessagesCreated.WithLabelValues(string(d.msg.Type)).Inc()
		s.notify(Notification{
			Type:           domain.EventMessageSent,
			ConversationID: d.msg.ConversationID,
			Recipients:     d.recipients,
			Payload:        domain.MessageSentPayload{Message: d.msg, ConversationKind: d.kind},
		})
		out = append(out, *d.msg)
	}
	return out, nil
}

// UpdateStatus upgrades the delivery status of a message. Downgrades are
// ignored. A read receipt also zeroes the reader's unread counter.
func (s *MessageService) UpdateStatus(ctx context.Context, messageID int64, status domain.MessageStatus, readerID *uuid.UUID) (*domain.Message, error) {
	if err := CheckMessageID(messageID); err != nil {
		return nil, err
	}
	if status != domain.StatusDelivered && status != domain.StatusRead {
		return nil, ErrInvalidStatus
	}

	var (
		msg        *domain.Message
		recipients []uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Repos) error {
		var err error
		msg, err = s.loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if readerID != nil {
			if _, err := s.resolver.ActiveParticipant(ctx, tx, msg.ConversationID, *readerID); err != nil {
				return err
			}
			if status == domain.StatusRead {
				if err := tx.Participants().ResetUnread(ctx, msg.ConversationID, *readerID); err != nil {
					return err
				}
			}
			if *readerID == msg.SenderID {
				return nil
			}
		}
		if !msg.Status.Advances(status) {
			return nil
		}
		msg.Status = status
		if err := tx.Messages().Update(ctx, msg); err != nil {
			return fmt.Errorf("updating status: %w", err)
		}
		active, err := tx.Participants().ListActive(ctx, msg.ConversationID)
		if err != nil {
			return err
		}
		recipients = userIDs(active)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(Notification{
		Type:           domain.EventMessageStatusUpdate,
		ConversationID: msg.ConversationID,
		Recipients:     recipients,
		Payload: domain.MessageStatusPayload{
			MessageID:      msg.ID,
			Status:         msg.Status,
			ConversationID: msg.ConversationID,
		},
	})
	return msg, nil
}

// ListMessages returns one page of history as seen by the viewer.
func (s *MessageService) ListMessages(ctx context.Context, input ListMessagesInput) (*MessageListResponse, error) {
	cursor, err := decodeMessageCursor(input.Cursor)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(input.Limit)
	direction := input.Direction
	if direction != domain.DirectionNewer {
		direction = domain.DirectionOlder
	}

	var (
		participant *domain.Participant
		readIDs     []int64
		recipients  []uuid.UUID
	)
	err = s.store.WithTx(ctx, func(tx repository.Repos) error {
		if _, err := s.resolver.ResolveAny(ctx, tx, input.ConversationID); err != nil {
			return err
		}
		var err error
		participant, err = s.resolver.Participant(ctx, tx, input.ConversationID, input.ViewerID)
		if err != nil {
			return err
		}
		// former members keep their history but no longer send receipts
		if !input.MarkRead || !participant.IsActive() {
			return nil
		}
		readIDs, err = tx.Messages().MarkRead(ctx, input.ConversationID, input.ViewerID)
		if err != nil {
			return fmt.Errorf("marking read: %w", err)
		}
		if err := tx.Participants().ResetUnread(ctx, input.ConversationID, input.ViewerID); err != nil {
			return err
		}
		active, err := tx.Participants().ListActive(ctx, input.ConversationID)
		if err != nil {
			return err
		}
		recipients = userIDs(active)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range readIDs {
		s.notify(Notification{
			Type:           domain.EventMessageStatusUpdate,
			ConversationID: input.ConversationID,
			Recipients:     recipients,
			Payload: domain.MessageStatusPayload{
				MessageID:      id,
				Status:         domain.StatusRead,
				ConversationID: input.ConversationID,
			},
		})
	}

	messages, err := s.store.Messages().List(ctx, domain.ListMessagesParams{
		ConversationID: input.ConversationID,
		ViewerID:       input.ViewerID,
		ClearedAt:      participant.ClearedAt,
		LeftAt:         participant.LeftAt,
		Cursor:         cursor,
		Limit:          limit + 1,
		Direction:      direction,
	})
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		if direction == domain.DirectionOlder {
			messages = messages[len(messages)-limit:]
		} else {
			messages = messages[:limit]
		}
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	resp := &MessageListResponse{Messages: messages, HasMore: hasMore}
	if hasMore {
		edge := messages[0].ID
		if direction == domain.DirectionNewer {
			edge = messages[len(messages)-1].ID
		}
		resp.NextCursor = encodeCursor(messageCursor{ID: edge})
	}
	return resp, nil
}

// Search matches text, captions and file names case-insensitively. A blank
// query matches nothing.
func (s *MessageService) Search(ctx context.Context, conversationID uuid.UUID, query string, requesterID uuid.UUID) ([]domain.Message, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.Message{}, nil
	}
	p, err := s.resolver.Participant(ctx, s.store, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().Search(ctx, domain.SearchMessagesParams{
		ConversationID: conversationID,
		ViewerID:       requesterID,
		ClearedAt:      p.ClearedAt,
		LeftAt:         p.LeftAt,
		Query:          query,
		Limit:          maxPageSize,
	})
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

func (s *MessageService) resolveTarget(ctx context.Context, tx repository.Repos, input SendMessageInput) (*domain.Conversation, error) {
	if input.RecipientID != nil {
		if *input.RecipientID != input.SenderID {
			blocked, err := tx.Users().IsBlockedEither(ctx, input.SenderID, *input.RecipientID)
			if err != nil {
				return nil, err
			}
			if blocked {
				return nil, ErrBlocked
			}
		}
		return s.resolver.ResolveDirect(ctx, tx, input.SenderID, *input.RecipientID)
	}
	return s.resolver.ResolveAny(ctx, tx, *input.ConversationID)
}

// insertMessage writes msg (and its media row) and applies the
// per-participant side effects of a new message.
func insertMessage(ctx context.Context, tx repository.Repos, msg *domain.Message, media *domain.MediaFile) error {
	if err := tx.Messages().Create(ctx, msg); err != nil {
		return fmt.Errorf("creating message: %w", err)
	}
	if media != nil {
		media.MessageID = msg.ID
		if err := tx.Media().Create(ctx, media); err != nil {
			return fmt.Errorf("creating media file: %w", err)
		}
		msg.Media = media
	}
	if err := tx.Participants().BumpForNewMessage(ctx, msg.ConversationID, msg.SenderID); err != nil {
		return fmt.Errorf("updating participants: %w", err)
	}
	if err := tx.Conversations().Touch(ctx, msg.ConversationID, msg.ID, msg.CreatedAt); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

func (s *MessageService) initialStatus(active []domain.Participant, senderID uuid.UUID) domain.MessageStatus {
	for _, p := range active {
		if p.UserID != senderID && s.isOnline(p.UserID) {
			return domain.StatusDelivered
		}
	}
	return domain.StatusSent
}

func (s *MessageService) loadMessage(ctx context.Context, tx repository.Repos, id int64) (*domain.Message, error) {
	msg, err := tx.Messages().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

// authorizeMessage applies the react/star rules: active participant, not
// blocked in a direct chat, message not retracted.
func (s *MessageService) authorizeMessage(ctx context.Context, tx repository.Repos, messageID int64, requesterID uuid.UUID) (*domain.Message, []domain.Participant, error) {
	msg, err := s.loadMessage(ctx, tx, messageID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.resolver.ResolveAny(ctx, tx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	active, err := s.resolver.Authorize(ctx, tx, conv, requesterID)
	if err != nil {
		return nil, nil, err
	}
	if msg.IsDeletedForEveryone {
		return nil, nil, ErrMessageDeleted
	}
	return msg, active, nil
}

// visibleTo reports whether msg is part of p's history: not hidden by a
// delete-for-me, not cleared, and not posted after p left.
func visibleTo(p *domain.Participant, msg *domain.Message) bool {
	if msg.IsDeletedFor(p.UserID) {
		return false
	}
	if p.ClearedAt != nil && !msg.CreatedAt.After(*p.ClearedAt) {
		return false
	}
	return p.LeftAt == nil || !msg.CreatedAt.After(*p.LeftAt)
}

// releaseBlob is a best-effort compensation; failures are only logged.
func (s *MessageService) releaseBlob(publicID, resourceType string) {
	releaseBlob(s.blobs, s.log, publicID, resourceType)
}

func releaseBlob(blobs blob.Store, log *zap.Logger, publicID, resourceType string) {
	if blobs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := blobs.Delete(ctx, publicID, resourceType); err != nil {
		log.Warn("blob_release_failed", zap.String("public_id", publicID), zap.Error(err))
	}
}

func dedupe[T comparable](items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if !slices.Contains(out, it) {
			out = append(out, it)
		}
	}
	return out
}
