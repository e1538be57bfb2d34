package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"passionautos/internal/chat"
	"passionautos/internal/infra/storage/memory"
)

var errBoom = errors.New("boom")

// fixture wires a seeded in-memory store shared by the synchronizer tests:
// two users, one vehicle thread between them.
type fixture struct {
	store *memory.Store
}

const (
	userMarie  = "user-marie"
	userJulien = "user-julien"
	convID     = "conv-1"
	vehicleID  = "vehicle-1"
)

func newFixture() *fixture {
	store := memory.NewStore()
	ctx := context.Background()
	_, _ = store.CreateUser(ctx, chat.UserAccount{ID: userMarie, Email: "marie@exemple.fr", FirstName: "Marie"})
	_, _ = store.CreateUser(ctx, chat.UserAccount{ID: userJulien, Email: "julien@exemple.fr", FirstName: "Julien"})
	store.SaveVehicle(chat.VehicleSummary{ID: vehicleID, OwnerID: userMarie, Title: "Peugeot 306"})
	store.SaveConversation(chat.Conversation{
		ID:        convID,
		VehicleID: vehicleID,
		Type:      chat.ConversationVehicle,
		CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}, userMarie, userJulien)
	return &fixture{store: store}
}

// seedMessages appends n persisted rows from Julien to Marie, one minute
// apart, all unread.
func (f *fixture) seedMessages(n int) []chat.Message {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	out := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		msg := chat.Message{
			ID:             fmt.Sprintf("msg-%03d", i),
			ConversationID: convID,
			FromUserID:     userJulien,
			ToUserID:       userMarie,
			VehicleID:      vehicleID,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		f.store.SeedMessage(msg)
		out = append(out, msg)
	}
	return out
}

// flakyStore wraps a real store with switchable failures.
type flakyStore struct {
	chat.Store
	mu         sync.Mutex
	failList   bool
	failInsert bool
	failMark   bool
}

func (s *flakyStore) setFailList(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failList = v
}

func (s *flakyStore) ConversationsForUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.Lock()
	fail := s.failList
	s.mu.Unlock()
	if fail {
		return nil, errBoom
	}
	return s.Store.ConversationsForUser(ctx, userID)
}

func (s *flakyStore) InsertMessage(ctx context.Context, draft chat.MessageDraft) (chat.Message, error) {
	s.mu.Lock()
	fail := s.failInsert
	s.mu.Unlock()
	if fail {
		return chat.Message{}, errBoom
	}
	return s.Store.InsertMessage(ctx, draft)
}

func (s *flakyStore) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	s.mu.Lock()
	fail := s.failMark
	s.mu.Unlock()
	if fail {
		return 0, errBoom
	}
	return s.Store.MarkConversationRead(ctx, conversationID, userID)
}

// scriptedFeed hands the registered callback back to the test so events can
// be replayed manually.
type scriptedFeed struct {
	mu     sync.Mutex
	filter string
	fn     chat.MessageFunc
	closed bool
}

func (f *scriptedFeed) SubscribeMessages(_ context.Context, conversationID string, fn chat.MessageFunc) (chat.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = conversationID
	f.fn = fn
	f.closed = false
	return f, nil
}

func (f *scriptedFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *scriptedFeed) emit(m chat.Message) {
	f.mu.Lock()
	fn, closed := f.fn, f.closed
	f.mu.Unlock()
	if fn != nil && !closed {
		fn(m)
	}
}

// deadFeed refuses every subscription.
type deadFeed struct{}

func (deadFeed) SubscribeMessages(context.Context, string, chat.MessageFunc) (chat.Subscription, error) {
	return nil, errBoom
}
