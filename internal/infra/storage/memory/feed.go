package memory

import (
	"context"

	"passionautos/internal/chat"
)

// SubscribeMessages registers a callback for message inserts, optionally
// filtered by conversation. Delivery happens synchronously on the
// inserting goroutine, after the store lock has been released.
func (s *Store) SubscribeMessages(ctx context.Context, conversationID string, fn chat.MessageFunc) (chat.Subscription, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	sub := &subscription{store: s, id: s.nextSub, conversationID: conversationID, fn: fn}
	s.subs[sub.id] = sub
	return sub, nil
}

func (s *Store) publish(msg chat.Message) {
	s.subMu.Lock()
	targets := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.conversationID == "" || sub.conversationID == msg.ConversationID {
			targets = append(targets, sub)
		}
	}
	s.subMu.Unlock()
	for _, sub := range targets {
		sub.fn(msg)
	}
}

type subscription struct {
	store          *Store
	id             int
	conversationID string
	fn             chat.MessageFunc
}

func (s *subscription) Close() error {
	s.store.subMu.Lock()
	defer s.store.subMu.Unlock()
	delete(s.store.subs, s.id)
	return nil
}
