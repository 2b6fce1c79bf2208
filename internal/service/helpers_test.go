package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/blob"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository/memory"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	events []Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{online: make(map[uuid.UUID]bool)}
}

func (n *recordingNotifier) IsOnline(userID uuid.UUID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online[userID]
}

func (n *recordingNotifier) Notify(ev Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) setOnline(userID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.online[userID] = true
}

func (n *recordingNotifier) ofType(typ string) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notification
	for _, ev := range n.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type fakeBlobs struct {
	mu       sync.Mutex
	next     int
	duration *float64
	failing  bool
	stored   map[string]bool
	deleted  []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{stored: make(map[string]bool)}
}

func (b *fakeBlobs) Upload(_ context.Context, data []byte, opts blob.UploadOptions) (*blob.UploadResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return nil, fmt.Errorf("storage unavailable")
	}
	b.next++
	id := fmt.Sprintf("%s/%d", opts.Folder, b.next)
	b.stored[id] = true
	duration := opts.DurationSeconds
	if b.duration != nil {
		duration = b.duration
	}
	return &blob.UploadResult{
		PublicID:        id,
		SecureURL:       "/media/" + id,
		Bytes:           int64(len(data)),
		DurationSeconds: duration,
	}, nil
}

func (b *fakeBlobs) Delete(_ context.Context, publicID, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.stored, publicID)
	b.deleted = append(b.deleted, publicID)
	return nil
}

type testEnv struct {
	store     *memory.Store
	notifier  *recordingNotifier
	blobs     *fakeBlobs
	resolver  *ConversationResolver
	messages  *MessageService
	chatState *ChatStateService
	groups    *GroupService
	users     *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	notifier := newRecordingNotifier()
	blobs := newFakeBlobs()
	resolver := NewConversationResolver()
	log := zap.NewNop()

	env := &testEnv{
		store:     store,
		notifier:  notifier,
		blobs:     blobs,
		resolver:  resolver,
		messages:  NewMessageService(store, resolver, blobs, log),
		chatState: NewChatStateService(store, resolver),
		groups:    NewGroupService(store, resolver, blobs, log),
		users:     NewUserService(store),
	}
	env.messages.SetNotifier(notifier)
	env.chatState.SetNotifier(notifier)
	env.groups.SetNotifier(notifier)
	return env
}

func (e *testEnv) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	u := &domain.User{
		ID:          uuid.New(),
		Email:       name + "@example.com",
		Username:    name,
		DisplayName: name,
	}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u.ID
}

func (e *testEnv) sendText(t *testing.T, from, to uuid.UUID, text string) *domain.Message {
	t.Helper()
	msg, err := e.messages.Send(context.Background(), SendMessageInput{
		SenderID:    from,
		RecipientID: &to,
		Body:        domain.TextBody{Text: text},
	})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) sendToConversation(t *testing.T, from, convID uuid.UUID, text string) *domain.Message {
	t.Helper()
	msg, err := e.messages.Send(context.Background(), SendMessageInput{
		SenderID:       from,
		ConversationID: &convID,
		Body:           domain.TextBody{Text: text},
	})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) participant(t *testing.T, convID, userID uuid.UUID) *domain.Participant {
	t.Helper()
	p, err := e.store.Participants().Get(context.Background(), convID, userID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (e *testEnv) group(t *testing.T, creator uuid.UUID, members ...uuid.UUID) uuid.UUID {
	t.Helper()
	details, err := e.groups.CreateGroup(context.Background(), CreateGroupInput{
		CreatorID: creator,
		Name:      "team",
		MemberIDs: members,
	})
	require.NoError(t, err)
	return details.Conversation.ID
}
