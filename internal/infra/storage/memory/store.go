package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"passionautos/internal/chat"
)

// Store is an in-memory row store and insert feed for single-process mode
// and tests. Not suitable for production deployments.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	members       map[string][]string
	messages      map[string][]chat.Message
	users         map[string]chat.UserAccount
	usersByEmail  map[string]string
	vehicles      map[string]chat.VehicleSummary

	subMu   sync.Mutex
	subs    map[int]*subscription
	nextSub int

	now func() time.Time
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[string]chat.Conversation),
		members:       make(map[string][]string),
		messages:      make(map[string][]chat.Message),
		users:         make(map[string]chat.UserAccount),
		usersByEmail:  make(map[string]string),
		vehicles:      make(map[string]chat.VehicleSummary),
		subs:          make(map[int]*subscription),
		now:           time.Now,
	}
}

// SetClock overrides the timestamp source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ConversationsForUser returns hydrated conversations the user belongs to.
func (s *Store) ConversationsForUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]chat.Conversation, 0)
	for id, conv := range s.conversations {
		if !containsString(s.members[id], userID) {
			continue
		}
		result = append(result, s.hydrateLocked(conv))
	}
	return result, nil
}

// MessagesForConversation returns the full history, oldest first.
func (s *Store) MessagesForConversation(ctx context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, chat.ErrConversationNotFound
	}
	return append([]chat.Message(nil), s.messages[conversationID]...), nil
}

// RecentMessages returns up to limit messages, newest first, with the
// sender participant embedded.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, chat.ErrConversationNotFound
	}
	history := s.messages[conversationID]
	if limit <= 0 {
		limit = chat.PageSize
	}
	start := len(history) - limit
	if start < 0 {
		start = 0
	}
	page := make([]chat.Message, 0, len(history)-start)
	for i := len(history) - 1; i >= start; i-- {
		m := history[i]
		if sender, ok := s.users[m.FromUserID]; ok {
			p := sender.Participant()
			m.Sender = &p
		}
		page = append(page, m)
	}
	return page, nil
}

// InsertMessage persists a draft, assigns id and timestamp, updates the
// conversation activity marker, and fans the row out to subscribers.
func (s *Store) InsertMessage(ctx context.Context, draft chat.MessageDraft) (chat.Message, error) {
	if err := draft.Validate(); err != nil {
		return chat.Message{}, err
	}
	s.mu.Lock()
	conv, ok := s.conversations[draft.ConversationID]
	if !ok {
		s.mu.Unlock()
		return chat.Message{}, chat.ErrConversationNotFound
	}
	msg := chat.Message{
		ID:             uuid.NewString(),
		State:          chat.MessagePersisted,
		ConversationID: draft.ConversationID,
		FromUserID:     draft.FromUserID,
		ToUserID:       draft.ToUserID,
		VehicleID:      draft.VehicleID,
		Content:        draft.Content,
		Read:           false,
		CreatedAt:      s.now().UTC(),
	}
	s.messages[draft.ConversationID] = append(s.messages[draft.ConversationID], msg)
	conv.LastMessageAt = msg.CreatedAt
	s.conversations[draft.ConversationID] = conv
	s.mu.Unlock()

	s.publish(msg)
	return msg, nil
}

// MarkConversationRead flips unread messages addressed to userID.
func (s *Store) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return 0, chat.ErrConversationNotFound
	}
	var affected int64
	history := s.messages[conversationID]
	for i := range history {
		if history[i].ToUserID == userID && !history[i].Read {
			history[i].Read = true
			affected++
		}
	}
	return affected, nil
}

// EnsureConversation returns the existing thread for (vehicle, pair) or
// creates a new one. An empty vehicleID makes a direct thread.
func (s *Store) EnsureConversation(ctx context.Context, vehicleID, starterID, peerID string) (chat.Conversation, error) {
	if starterID == "" || peerID == "" || starterID == peerID {
		return chat.Conversation{}, errors.New("memory: two distinct participants are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	want := normalizePair(starterID, peerID)
	for id, conv := range s.conversations {
		if conv.VehicleID != vehicleID {
			continue
		}
		if samePair(s.members[id], want) {
			return s.hydrateLocked(conv), nil
		}
	}
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		Type:      chat.ConversationDirect,
		CreatedAt: s.now().UTC(),
	}
	if vehicleID != "" {
		conv.Type = chat.ConversationVehicle
	}
	s.conversations[conv.ID] = conv
	s.members[conv.ID] = want
	return s.hydrateLocked(conv), nil
}

// User returns the chat projection of a user row.
func (s *Store) User(ctx context.Context, id string) (chat.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.users[id]
	if !ok {
		return chat.Participant{}, chat.ErrUserNotFound
	}
	return account.Participant(), nil
}

// UserByEmail returns the full account row for credential checks.
func (s *Store) UserByEmail(ctx context.Context, email string) (chat.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[emailKey(email)]
	if !ok {
		return chat.UserAccount{}, chat.ErrUserNotFound
	}
	return s.users[id], nil
}

// CreateUser registers an account, assigning id and timestamp when absent.
func (s *Store) CreateUser(ctx context.Context, account chat.UserAccount) (chat.UserAccount, error) {
	key := emailKey(account.Email)
	if key == "" {
		return chat.UserAccount{}, errors.New("memory: email is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.usersByEmail[key]; ok && existing != account.ID {
		return chat.UserAccount{}, chat.ErrEmailAlreadyUsed
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now().UTC()
	}
	s.users[account.ID] = account
	s.usersByEmail[key] = account.ID
	return account, nil
}

// Vehicle returns one listing summary.
func (s *Store) Vehicle(ctx context.Context, id string) (chat.VehicleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vehicle, ok := s.vehicles[id]
	if !ok {
		return chat.VehicleSummary{}, chat.ErrVehicleNotFound
	}
	vehicle.Images = append([]string(nil), vehicle.Images...)
	return vehicle, nil
}

// Vehicles returns the catalog ordered by title.
func (s *Store) Vehicles(ctx context.Context) ([]chat.VehicleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]chat.VehicleSummary, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		v.Images = append([]string(nil), v.Images...)
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Title == result[j].Title {
			return result[i].ID < result[j].ID
		}
		return result[i].Title < result[j].Title
	})
	return result, nil
}

// AddVehicleImage appends an image URL to a listing.
func (s *Store) AddVehicleImage(ctx context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vehicle, ok := s.vehicles[id]
	if !ok {
		return chat.ErrVehicleNotFound
	}
	vehicle.Images = append(vehicle.Images, url)
	s.vehicles[id] = vehicle
	return nil
}

// SaveVehicle upserts a listing row, for seeding.
func (s *Store) SaveVehicle(vehicle chat.VehicleSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[vehicle.ID] = vehicle
}

// SaveConversation upserts a conversation row with its membership, for
// seeding. Derived fields on the argument are ignored.
func (s *Store) SaveConversation(conv chat.Conversation, memberIDs ...string) {
	conv.Participants = nil
	conv.Vehicle = nil
	conv.LastMessage = nil
	conv.UnreadCount = 0
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	s.members[conv.ID] = append([]string(nil), memberIDs...)
}

// SeedMessage appends a fully specified message row without feed fan-out.
func (s *Store) SeedMessage(msg chat.Message) {
	msg.State = chat.MessagePersisted
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	if conv, ok := s.conversations[msg.ConversationID]; ok && msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
		s.conversations[msg.ConversationID] = conv
	}
}

func (s *Store) hydrateLocked(conv chat.Conversation) chat.Conversation {
	conv.Participants = make([]chat.Participant, 0, len(s.members[conv.ID]))
	for _, id := range s.members[conv.ID] {
		if account, ok := s.users[id]; ok {
			conv.Participants = append(conv.Participants, account.Participant())
		} else {
			conv.Participants = append(conv.Participants, chat.Participant{ID: id})
		}
	}
	if conv.VehicleID != "" {
		if vehicle, ok := s.vehicles[conv.VehicleID]; ok {
			vehicle.Images = append([]string(nil), vehicle.Images...)
			conv.Vehicle = &vehicle
		}
	}
	return conv
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func normalizePair(a, b string) []string {
	if b < a {
		a, b = b, a
	}
	return []string{a, b}
}

func samePair(members, want []string) bool {
	if len(members) != 2 || len(want) != 2 {
		return false
	}
	got := normalizePair(members[0], members[1])
	return got[0] == want[0] && got[1] == want[1]
}
