package chat

import (
	"errors"
	"strings"
	"time"
)

// ConversationType tags how a thread was started.
type ConversationType string

const (
	// ConversationDirect is a user-to-user thread without a listing.
	ConversationDirect ConversationType = "direct"
	// ConversationVehicle is a thread scoped to a vehicle listing.
	ConversationVehicle ConversationType = "vehicle"
)

// MessageState discriminates optimistic local entries from persisted rows.
type MessageState string

const (
	// MessagePersisted marks a row confirmed by the store.
	MessagePersisted MessageState = "persisted"
	// MessagePending marks a locally synthesized entry awaiting confirmation.
	// A pending identifier is never reused by a server-assigned row.
	MessagePending MessageState = "pending"
)

// Participant is the chat projection of a user row.
type Participant struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// UserAccount is the full user row; Participant is its chat-facing subset.
type UserAccount struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Participant projects the account fields visible to chat peers.
func (u UserAccount) Participant() Participant {
	return Participant{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

// VehicleSummary is the listing context embedded in a conversation.
type VehicleSummary struct {
	ID      string   `json:"id"`
	OwnerID string   `json:"owner_id,omitempty"`
	Title   string   `json:"title"`
	Images  []string `json:"images,omitempty"`
}

// Message is a single chat message. Persisted rows are immutable except
// for the read flag, which flips false->true once via the recipient's sweep.
type Message struct {
	ID             string       `json:"id"`
	State          MessageState `json:"state,omitempty"`
	ConversationID string       `json:"conversation_id"`
	FromUserID     string       `json:"from_user_id"`
	ToUserID       string       `json:"to_user_id"`
	VehicleID      string       `json:"vehicle_id,omitempty"`
	Content        string       `json:"content"`
	Read           bool         `json:"read"`
	CreatedAt      time.Time    `json:"created_at"`
	Sender         *Participant `json:"sender,omitempty"`
}

// MessageDraft is the insert payload; the store assigns id and timestamp.
type MessageDraft struct {
	ConversationID string `json:"conversation_id"`
	FromUserID     string `json:"from_user_id"`
	ToUserID       string `json:"to_user_id"`
	VehicleID      string `json:"vehicle_id,omitempty"`
	Content        string `json:"content"`
}

// Validate rejects drafts that cannot form a valid message row.
func (d MessageDraft) Validate() error {
	if strings.TrimSpace(d.ConversationID) == "" {
		return errors.New("chat: conversation id is required")
	}
	if strings.TrimSpace(d.FromUserID) == "" || strings.TrimSpace(d.ToUserID) == "" {
		return errors.New("chat: sender and recipient are required")
	}
	if strings.TrimSpace(d.Content) == "" {
		return errors.New("chat: content is required")
	}
	return nil
}

// Conversation is a thread with its hydrated context. LastMessage and
// UnreadCount are derived per viewer, never stored.
type Conversation struct {
	ID            string           `json:"id"`
	VehicleID     string           `json:"vehicle_id,omitempty"`
	Type          ConversationType `json:"type"`
	CreatedAt     time.Time        `json:"created_at"`
	LastMessageAt time.Time        `json:"last_message_at,omitempty"`

	Participants []Participant   `json:"participants"`
	Vehicle      *VehicleSummary `json:"vehicle,omitempty"`
	LastMessage  *Message        `json:"last_message,omitempty"`
	UnreadCount  int             `json:"unread_count"`
}

// LastActivity returns the timestamp conversations are ordered by.
func LastActivity(c Conversation) time.Time {
	if c.LastMessage != nil && !c.LastMessage.CreatedAt.IsZero() {
		return c.LastMessage.CreatedAt
	}
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}
