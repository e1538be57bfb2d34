package chat

import (
	"context"
	"errors"
)

// Store errors shared by implementations.
var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrUserNotFound         = errors.New("chat: user not found")
	ErrVehicleNotFound      = errors.New("chat: vehicle not found")
	ErrEmailAlreadyUsed     = errors.New("chat: email already used")
)

// Store is the row-store contract the synchronizers consume. Every call is
// single-shot and non-transactional; no multi-row atomicity is assumed.
type Store interface {
	// ConversationsForUser returns all conversations the user participates
	// in, hydrated with the full participant set and the vehicle summary.
	ConversationsForUser(ctx context.Context, userID string) ([]Conversation, error)

	// MessagesForConversation returns the complete message history in
	// ascending creation order.
	MessagesForConversation(ctx context.Context, conversationID string) ([]Message, error)

	// RecentMessages returns up to limit messages, newest first, with the
	// sender participant embedded.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// InsertMessage persists a draft and returns the authoritative row.
	// The store assigns the identifier and creation timestamp.
	InsertMessage(ctx context.Context, draft MessageDraft) (Message, error)

	// MarkConversationRead flips read=false to true on every message in the
	// conversation addressed to userID, returning the affected-row count.
	MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error)
}

// DeriveLastMessage picks the message with the maximum creation timestamp.
// Ties are broken arbitrarily; at this granularity the choice is not
// meaningful. Returns nil for an empty history.
func DeriveLastMessage(msgs []Message) *Message {
	var last *Message
	for i := range msgs {
		if last == nil || msgs[i].CreatedAt.After(last.CreatedAt) {
			last = &msgs[i]
		}
	}
	if last == nil {
		return nil
	}
	copied := *last
	return &copied
}

// CountUnread counts messages not sent by the viewer with read=false.
func CountUnread(msgs []Message, viewerID string) int {
	count := 0
	for i := range msgs {
		if msgs[i].FromUserID != viewerID && !msgs[i].Read {
			count++
		}
	}
	return count
}
