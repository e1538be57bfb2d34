package dto

import (
	"time"

	"passionautos/internal/chat"
)

// Participant is the public projection of a conversation member.
type Participant struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	FromUserID     string       `json:"from_user_id"`
	ToUserID       string       `json:"to_user_id"`
	VehicleID      string       `json:"vehicle_id,omitempty"`
	Content        string       `json:"content"`
	Read           bool         `json:"read"`
	CreatedAt      time.Time    `json:"created_at"`
	Sender         *Participant `json:"sender,omitempty"`
}

// Conversation describes a chat with its participants and unread state.
type Conversation struct {
	ID            string        `json:"id"`
	VehicleID     string        `json:"vehicle_id,omitempty"`
	Type          string        `json:"type"`
	CreatedAt     time.Time     `json:"created_at"`
	LastMessageAt time.Time     `json:"last_message_at,omitempty"`
	Participants  []Participant `json:"participants"`
	Vehicle       *Vehicle      `json:"vehicle,omitempty"`
	LastMessage   *ChatMessage  `json:"last_message,omitempty"`
	UnreadCount   int           `json:"unread_count"`
}

// ConversationList is the inbox payload.
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ChatMessageList is one page of thread history, oldest first.
type ChatMessageList struct {
	Items   []ChatMessage `json:"items"`
	HasMore bool          `json:"has_more"`
}

func NewParticipant(p chat.Participant) Participant {
	return Participant{ID: p.ID, Email: p.Email, FirstName: p.FirstName, LastName: p.LastName}
}

func NewChatMessage(m chat.Message) ChatMessage {
	out := ChatMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		FromUserID:     m.FromUserID,
		ToUserID:       m.ToUserID,
		VehicleID:      m.VehicleID,
		Content:        m.Content,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
	if m.Sender != nil {
		sender := NewParticipant(*m.Sender)
		out.Sender = &sender
	}
	return out
}

func NewConversation(c chat.Conversation) Conversation {
	out := Conversation{
		ID:            c.ID,
		VehicleID:     c.VehicleID,
		Type:          string(c.Type),
		CreatedAt:     c.CreatedAt,
		LastMessageAt: c.LastMessageAt,
		Participants:  make([]Participant, 0, len(c.Participants)),
		UnreadCount:   c.UnreadCount,
	}
	for _, p := range c.Participants {
		out.Participants = append(out.Participants, NewParticipant(p))
	}
	if c.Vehicle != nil {
		vehicle := NewVehicle(*c.Vehicle)
		out.Vehicle = &vehicle
	}
	if c.LastMessage != nil {
		last := NewChatMessage(*c.LastMessage)
		out.LastMessage = &last
	}
	return out
}

func NewConversationList(items []chat.Conversation) ConversationList {
	out := ConversationList{Items: make([]Conversation, 0, len(items))}
	for _, c := range items {
		out.Items = append(out.Items, NewConversation(c))
	}
	return out
}

func NewChatMessageList(items []chat.Message, hasMore bool) ChatMessageList {
	out := ChatMessageList{Items: make([]ChatMessage, 0, len(items)), HasMore: hasMore}
	for _, m := range items {
		out.Items = append(out.Items, NewChatMessage(m))
	}
	return out
}
