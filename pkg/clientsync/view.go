// Package clientsync keeps a client's local copy of a conversation
// consistent with the server while optimistic sends are in flight.
package clientsync

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// Local-only statuses. They never leave the client.
const (
	StatusPending domain.MessageStatus = "pending"
	StatusFailed  domain.MessageStatus = "error"
)

const tempPrefix = "tmp-"

// tempSeq numbers optimistic entries. It is process-wide so temp ids never
// collide across views.
var tempSeq atomic.Int64

// Entry is one row of the rendered timeline.
type Entry struct {
	domain.Message
	TempID string `json:"tempId,omitempty"`
	// ReceiverID is set on optimistic direct sends made before the
	// conversation id is known.
	ReceiverID *uuid.UUID `json:"receiverId,omitempty"`
}

// key identifies an entry: its real id once persisted, its temp id before.
func (e *Entry) key() string {
	if e.ID > 0 {
		return strconv.FormatInt(e.ID, 10)
	}
	return e.TempID
}

type delta func(e *Entry)

// View is the client state of one open conversation. History pages from the
// server are the source of truth; pending entries are overlaid until the
// server acknowledges them.
type View struct {
	mu sync.Mutex

	self           uuid.UUID
	peer           uuid.UUID
	conversationID uuid.UUID

	history  map[int64]*Entry
	pending  map[string]*Entry
	resolved map[string]int64
	queued   map[string][]delta

	loadingOlder bool
	liveAppend   bool
}

// NewDirectView opens a direct chat with peer. conversationID may be
// uuid.Nil until the first message is acknowledged.
func NewDirectView(self, peer, conversationID uuid.UUID) *View {
	v := newView(self, conversationID)
	v.peer = peer
	return v
}

func NewGroupView(self, conversationID uuid.UUID) *View {
	return newView(self, conversationID)
}

func newView(self, conversationID uuid.UUID) *View {
	return &View{
		self:           self,
		conversationID: conversationID,
		history:        make(map[int64]*Entry),
		pending:        make(map[string]*Entry),
		resolved:       make(map[string]int64),
		queued:         make(map[string][]delta),
	}
}

func (v *View) ConversationID() uuid.UUID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conversationID
}

func (v *View) Peer() uuid.UUID {
	return v.peer
}

// Belongs reports whether msg should be rendered in this view. Rows without
// a conversation id match on the {self, peer} pair of a direct view; a view
// without an id never claims rows that carry one (see AdoptDirect).
func (v *View) Belongs(e Entry) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.belongs(&e)
}

func (v *View) belongs(e *Entry) bool {
	if e.ConversationID != uuid.Nil {
		return v.conversationID != uuid.Nil && e.ConversationID == v.conversationID
	}
	if v.peer == uuid.Nil || e.ReceiverID == nil {
		return false
	}
	return (e.SenderID == v.self && *e.ReceiverID == v.peer) ||
		(e.SenderID == v.peer && *e.ReceiverID == v.self)
}

// Merge folds a history page into the view. Rows already present are
// replaced by the server copy.
func (v *View) Merge(page []domain.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.liveAppend = false
	v.mergeLocked(page)
}

func (v *View) mergeLocked(page []domain.Message) {
	for _, m := range page {
		e := &Entry{Message: m}
		if !v.belongs(e) {
			continue
		}
		if old, ok := v.history[m.ID]; ok {
			e.TempID = old.TempID
		}
		v.history[m.ID] = e
		v.replay(e.key(), e)
	}
}

// BeginLoadOlder sets the older-history latch. It returns false when a load
// is already running.
func (v *View) BeginLoadOlder() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loadingOlder {
		return false
	}
	v.loadingOlder = true
	v.liveAppend = false
	return true
}

// LoadOlder merges an older page and releases the latch. Live rows that
// arrived while the page was loading still count for auto-scroll.
func (v *View) LoadOlder(page []domain.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mergeLocked(page)
	v.loadingOlder = false
}

// ShouldAutoScroll is true only right after a live append and never while
// older history is being loaded.
func (v *View) ShouldAutoScroll() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.liveAppend && !v.loadingOlder
}

// Messages returns the rendered timeline in chronological order. Rows the
// local user deleted for themselves are left out.
func (v *View) Messages() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Entry, 0, len(v.history)+len(v.pending))
	for _, e := range v.history {
		if e.IsDeletedFor(v.self) {
			continue
		}
		out = append(out, *e)
	}
	for tempID, e := range v.pending {
		if _, done := v.resolved[tempID]; done {
			continue
		}
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID != b.ID {
			// pending rows (id 0) sort after persisted ones at the same instant
			switch {
			case a.ID == 0:
				return 1
			case b.ID == 0:
				return -1
			case a.ID < b.ID:
				return -1
			default:
				return 1
			}
		}
		return strings.Compare(a.TempID, b.TempID)
	})
	return out
}

// AddPending inserts an optimistic entry and returns its temp id.
func (v *View) AddPending(e Entry) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	e.ID = 0
	e.TempID = tempPrefix + strconv.FormatInt(tempSeq.Add(1), 10)
	e.Status = StatusPending
	e.SenderID = v.self
	if e.ConversationID == uuid.Nil {
		e.ConversationID = v.conversationID
	}
	if e.ConversationID == uuid.Nil && v.peer != uuid.Nil {
		peer := v.peer
		e.ReceiverID = &peer
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	v.pending[e.TempID] = &e
	v.liveAppend = true
	return e.TempID
}

// Resolve replaces the pending entry tempID with the persisted msg. It
// reports false when tempID was already resolved.
func (v *View) Resolve(tempID string, msg domain.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolveLocked(tempID, msg)
}

func (v *View) resolveLocked(tempID string, msg domain.Message) bool {
	if _, done := v.resolved[tempID]; done {
		return false
	}
	if _, ok := v.pending[tempID]; !ok {
		return false
	}
	delete(v.pending, tempID)
	v.resolved[tempID] = msg.ID
	if v.conversationID == uuid.Nil {
		v.conversationID = msg.ConversationID
	}

	e := &Entry{Message: msg, TempID: tempID}
	if old, ok := v.history[msg.ID]; ok {
		// a history page already carried the row
		e.Message = old.Message
	}
	v.history[msg.ID] = e
	v.replay(tempID, e)
	v.replay(e.key(), e)
	v.liveAppend = true
	return true
}

// ApplyCreated handles a message-sent event. Acknowledgements of our own
// sends resolve the pending entry; everything else is appended once.
func (v *View) ApplyCreated(msg domain.Message, tempID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tempID != "" && msg.SenderID == v.self {
		if _, ok := v.pending[tempID]; ok {
			return v.resolveLocked(tempID, msg)
		}
		if _, done := v.resolved[tempID]; done {
			return false
		}
	}
	if _, ok := v.history[msg.ID]; ok {
		return false
	}
	e := &Entry{Message: msg}
	if !v.belongs(e) {
		return false
	}
	v.history[msg.ID] = e
	v.replay(e.key(), e)
	v.liveAppend = true
	return true
}

// AdoptDirect lets a direct view that has no conversation id yet take over
// the id of an incoming direct message from its peer. kind is the kind of
// msg's conversation as reported by the server.
func (v *View) AdoptDirect(msg domain.Message, kind domain.ConversationKind) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if kind != domain.ConversationDirect || msg.ConversationID == uuid.Nil {
		return false
	}
	if v.peer == uuid.Nil || v.conversationID != uuid.Nil || msg.SenderID != v.peer {
		return false
	}
	if _, ok := v.history[msg.ID]; ok {
		return false
	}
	v.conversationID = msg.ConversationID
	e := &Entry{Message: msg}
	v.history[msg.ID] = e
	v.replay(e.key(), e)
	v.liveAppend = true
	return true
}

// MarkFailed flags a pending send as failed.
func (v *View) MarkFailed(tempID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.pending[tempID]
	if !ok {
		return false
	}
	e.Status = StatusFailed
	return true
}

// PendingTempIDs returns the temp ids still waiting for acknowledgement.
func (v *View) PendingTempIDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.pending))
	for id := range v.pending {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (v *View) HasPending(tempID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.pending[tempID]
	return ok
}

// ApplyStatus upgrades the status of ref. Downgrades are ignored.
func (v *View) ApplyStatus(ref string, status domain.MessageStatus) {
	v.apply(ref, func(e *Entry) {
		if e.Status.Advances(status) {
			e.Status = status
		}
	})
}

func (v *View) ApplyEdit(ref, content string, editedAt time.Time) {
	v.apply(ref, func(e *Entry) {
		if e.Type.IsMedia() {
			e.Caption = &content
		} else {
			e.Content = content
		}
		e.IsEdited = true
		e.EditedAt = &editedAt
	})
}

// ApplyDelete retracts ref for everyone, or hides it for this user only.
func (v *View) ApplyDelete(ref string, deleteType domain.DeleteType) {
	if deleteType == domain.DeleteForMe {
		v.apply(ref, func(e *Entry) {
			e.MarkDeletedFor(v.self)
		})
		return
	}
	v.apply(ref, func(e *Entry) {
		e.IsDeletedForEveryone = true
		e.Content = ""
		e.Caption = nil
		e.Media = nil
	})
}

func (v *View) ApplyReaction(ref string, reactions []domain.Reaction) {
	v.apply(ref, func(e *Entry) {
		e.Reactions = slices.Clone(reactions)
	})
}

// apply runs d on the entry named by ref, or queues it until that entry
// shows up.
func (v *View) apply(ref string, d delta) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if e := v.lookup(ref); e != nil {
		d(e)
		return
	}
	v.queued[ref] = append(v.queued[ref], d)
}

func (v *View) lookup(ref string) *Entry {
	if strings.HasPrefix(ref, tempPrefix) {
		if id, ok := v.resolved[ref]; ok {
			return v.history[id]
		}
		return nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return nil
	}
	return v.history[id]
}

func (v *View) replay(ref string, e *Entry) {
	ds := v.queued[ref]
	if len(ds) == 0 {
		return
	}
	delete(v.queued, ref)
	for _, d := range ds {
		d(e)
	}
}
