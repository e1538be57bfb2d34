package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrClosed is returned by synchronizer operations after Close.
var ErrClosed = errors.New("chat: synchronizer closed")

// Inbox keeps one user's conversation list in sync: a hydrated load with
// derived last-message and unread counts, then a full reload on every
// message-insert event. The reload-instead-of-patch strategy is the
// contract, correctness over efficiency.
type Inbox struct {
	store  Store
	feed   Feed
	logger *slog.Logger

	// OnChange, when set before Load, observes each published list.
	OnChange func([]Conversation)

	mu            sync.Mutex
	userID        string
	conversations []Conversation
	loadErr       error
	sub           Subscription
	closed        bool
	gen           int
}

// NewInbox builds a list synchronizer for one UI session.
func NewInbox(store Store, feed Feed, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{store: store, feed: feed, logger: logger}
}

// Load switches the inbox to userID and refreshes the list. Switching
// users tears down the previous subscription and discards in-flight
// results from it.
func (in *Inbox) Load(ctx context.Context, userID string) error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return ErrClosed
	}
	if userID == "" {
		in.mu.Unlock()
		return errors.New("chat: user id is required")
	}
	if in.userID != userID {
		if in.sub != nil {
			_ = in.sub.Close()
			in.sub = nil
		}
		in.userID = userID
		in.conversations = nil
		in.loadErr = nil
		in.gen++
	}
	needSub := in.sub == nil
	gen := in.gen
	in.mu.Unlock()

	if needSub {
		// Unfiltered: any insert anywhere refreshes ordering and badges.
		sub, err := in.feed.SubscribeMessages(ctx, "", func(Message) {
			if err := in.refresh(context.Background()); err != nil {
				in.logger.Warn("inbox refresh failed", "error", err)
			}
		})
		if err != nil {
			// Degraded mode: the list still loads, it just will not follow
			// new messages until the next Load.
			in.logger.Warn("message feed unavailable", "error", err)
		} else {
			in.mu.Lock()
			if in.closed || gen != in.gen {
				in.mu.Unlock()
				_ = sub.Close()
				return ErrClosed
			}
			in.sub = sub
			in.mu.Unlock()
		}
	}
	return in.refresh(ctx)
}

// refresh re-runs the full query pipeline and replaces the list wholesale.
func (in *Inbox) refresh(ctx context.Context) error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return ErrClosed
	}
	userID := in.userID
	gen := in.gen
	in.mu.Unlock()
	if userID == "" {
		return nil
	}

	list, err := LoadOverview(ctx, in.store, userID)

	in.mu.Lock()
	if in.closed || gen != in.gen {
		// The view was torn down or switched users while the query was in
		// flight; its result no longer applies.
		in.mu.Unlock()
		return nil
	}
	if err != nil {
		// Keep the previous list on failure; surface the error state.
		in.loadErr = err
		in.mu.Unlock()
		return err
	}
	in.loadErr = nil
	in.conversations = list
	notify := in.OnChange
	published := append([]Conversation(nil), list...)
	in.mu.Unlock()

	if notify != nil {
		notify(published)
	}
	return nil
}

// Conversations returns the current list, most recently active first.
func (in *Inbox) Conversations() []Conversation {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Conversation(nil), in.conversations...)
}

// Err reports the last load failure, nil after a successful refresh.
func (in *Inbox) Err() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.loadErr
}

// Close tears down the feed subscription and freezes the inbox.
func (in *Inbox) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	sub := in.sub
	in.sub = nil
	in.mu.Unlock()
	if sub != nil {
		return sub.Close()
	}
	return nil
}

// LoadOverview queries one user's conversations and derives the per-viewer
// fields: participants without the viewer, last message, unread count,
// most-recently-active-first ordering.
func LoadOverview(ctx context.Context, store Store, userID string) ([]Conversation, error) {
	conversations, err := store.ConversationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	for i := range conversations {
		msgs, err := store.MessagesForConversation(ctx, conversations[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load history for %s: %w", conversations[i].ID, err)
		}
		conversations[i].LastMessage = DeriveLastMessage(msgs)
		conversations[i].UnreadCount = CountUnread(msgs, userID)
		conversations[i].Participants = withoutParticipant(conversations[i].Participants, userID)
	}
	sort.SliceStable(conversations, func(i, j int) bool {
		return LastActivity(conversations[i]).After(LastActivity(conversations[j]))
	})
	return conversations, nil
}

func withoutParticipant(participants []Participant, userID string) []Participant {
	out := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if p.ID == userID {
			continue
		}
		out = append(out, p)
	}
	return out
}
