package chat

import "context"

// MessageFunc receives a newly inserted message row.
type MessageFunc func(Message)

// Subscription is a live feed handle. Close tears it down; it is the only
// cancellation primitive the feed offers.
type Subscription interface {
	Close() error
}

// Feed delivers message-insert events. Delivery is at-least-once and
// unordered: consumers must tolerate duplicates (the synchronizers
// de-duplicate by identifier). An empty conversationID subscribes to
// inserts across all conversations.
type Feed interface {
	SubscribeMessages(ctx context.Context, conversationID string, fn MessageFunc) (Subscription, error)
}
