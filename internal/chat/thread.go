package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PageSize is the thread history page length; HasMore reports whether the
// last fetched page was full-sized.
const PageSize = 50

const localIDPrefix = "local-"

// Thread keeps one conversation's message sequence in sync for one viewer:
// the most recent history page in ascending order, realtime appends from
// the insert feed, a read sweep over messages addressed to the viewer, and
// an optimistic send lifecycle.
type Thread struct {
	store  Store
	feed   Feed
	logger *slog.Logger
	now    func() time.Time

	// OnAppend, when set before Load, observes every appended message,
	// pending entries included.
	OnAppend func(Message)

	mu             sync.Mutex
	conversationID string
	viewerID       string
	messages       []Message
	hasMore        bool
	loadErr        error
	sub            Subscription
	closed         bool
	gen            int
}

// NewThread builds a thread synchronizer for one UI session.
func NewThread(store Store, feed Feed, logger *slog.Logger) *Thread {
	if logger == nil {
		logger = slog.Default()
	}
	return &Thread{store: store, feed: feed, logger: logger, now: time.Now}
}

// Load points the thread at (conversationID, viewerID), fetches the most
// recent page, sweeps unread messages addressed to the viewer, and
// subscribes to inserts for this conversation. Changing either identifier
// tears the previous subscription down and discards stale results.
func (t *Thread) Load(ctx context.Context, conversationID, viewerID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if conversationID == "" || viewerID == "" {
		t.mu.Unlock()
		return errors.New("chat: conversation id and viewer id are required")
	}
	if t.conversationID != conversationID || t.viewerID != viewerID {
		if t.sub != nil {
			_ = t.sub.Close()
			t.sub = nil
		}
		t.conversationID = conversationID
		t.viewerID = viewerID
		t.messages = nil
		t.hasMore = false
		t.loadErr = nil
		t.gen++
	}
	gen := t.gen
	t.mu.Unlock()

	page, err := t.store.RecentMessages(ctx, conversationID, PageSize)
	if err != nil {
		t.mu.Lock()
		if !t.closed && gen == t.gen {
			t.loadErr = err
		}
		t.mu.Unlock()
		return fmt.Errorf("load messages: %w", err)
	}

	ascending := make([]Message, len(page))
	for i := range page {
		m := page[len(page)-1-i]
		m.State = MessagePersisted
		ascending[i] = m
	}

	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return nil
	}
	// The displayed page keeps the just-fetched read flags; the sweep below
	// only converges the persisted state.
	t.messages = ascending
	t.hasMore = len(page) >= PageSize
	t.loadErr = nil
	needSub := t.sub == nil
	t.mu.Unlock()

	t.sweep(ctx)

	if needSub {
		sub, err := t.feed.SubscribeMessages(ctx, conversationID, func(m Message) {
			t.deliver(m)
		})
		if err != nil {
			// Degraded mode: history stays visible, realtime appends stop.
			t.logger.Warn("message feed unavailable", "conversation_id", conversationID, "error", err)
			return nil
		}
		t.mu.Lock()
		if t.closed || gen != t.gen {
			t.mu.Unlock()
			_ = sub.Close()
			return nil
		}
		t.sub = sub
		t.mu.Unlock()
	}
	return nil
}

// Send appends an optimistic pending entry, persists the draft, and
// removes the pending entry once the insert resolves either way. The
// authoritative row is appended later by the feed; a dropped confirmation
// is a display gap, not data loss. No retry is attempted here.
func (t *Thread) Send(ctx context.Context, content, toUserID, vehicleID string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("chat: content is required")
	}
	if toUserID == "" {
		return errors.New("chat: recipient is required")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.conversationID == "" {
		t.mu.Unlock()
		return errors.New("chat: thread is not loaded")
	}
	pending := Message{
		ID:             localIDPrefix + uuid.NewString(),
		State:          MessagePending,
		ConversationID: t.conversationID,
		FromUserID:     t.viewerID,
		ToUserID:       toUserID,
		VehicleID:      vehicleID,
		Content:        content,
		CreatedAt:      t.now(),
	}
	draft := MessageDraft{
		ConversationID: pending.ConversationID,
		FromUserID:     pending.FromUserID,
		ToUserID:       pending.ToUserID,
		VehicleID:      pending.VehicleID,
		Content:        pending.Content,
	}
	t.messages = append(t.messages, pending)
	notify := t.OnAppend
	t.mu.Unlock()

	if notify != nil {
		notify(pending)
	}

	_, err := t.store.InsertMessage(ctx, draft)

	t.mu.Lock()
	t.removePending(pending.ID)
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// deliver appends a feed event, de-duplicating by identifier: the feed may
// replay a row it already delivered.
func (t *Thread) deliver(m Message) {
	t.mu.Lock()
	if t.closed || m.ConversationID != t.conversationID {
		t.mu.Unlock()
		return
	}
	if t.contains(m.ID) {
		t.mu.Unlock()
		return
	}
	m.State = MessagePersisted
	t.messages = append(t.messages, m)
	viewerID := t.viewerID
	notify := t.OnAppend
	t.mu.Unlock()

	if notify != nil {
		notify(m)
	}
	if m.ToUserID == viewerID {
		t.sweep(context.Background())
	}
}

// sweep marks every unread message addressed to the viewer as read.
// Failures are logged and swallowed; display never waits on the sweep.
func (t *Thread) sweep(ctx context.Context) {
	t.mu.Lock()
	conversationID, viewerID := t.conversationID, t.viewerID
	t.mu.Unlock()
	if conversationID == "" {
		return
	}
	if _, err := t.store.MarkConversationRead(ctx, conversationID, viewerID); err != nil {
		t.logger.Warn("read sweep failed", "conversation_id", conversationID, "error", err)
	}
}

func (t *Thread) contains(id string) bool {
	for i := range t.messages {
		if t.messages[i].ID == id {
			return true
		}
	}
	return false
}

// removePending drops the entry matching (pending state, exact id).
func (t *Thread) removePending(id string) {
	for i := range t.messages {
		if t.messages[i].State == MessagePending && t.messages[i].ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return
		}
	}
}

// Messages returns the current sequence, oldest first.
func (t *Thread) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

// HasMore reports whether older history exists beyond the loaded page.
func (t *Thread) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

// Err reports the last load failure, nil after a successful load.
func (t *Thread) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadErr
}

// Close tears down the feed subscription and freezes the thread.
func (t *Thread) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	if sub != nil {
		return sub.Close()
	}
	return nil
}
