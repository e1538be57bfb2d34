package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passionautos/internal/chat"
)

func TestLoadOverviewDerivesViewerFields(t *testing.T) {
	f := newFixture()
	seeded := f.seedMessages(3) // Julien -> Marie, unread
	f.store.SeedMessage(chat.Message{
		ID:             "msg-read",
		ConversationID: convID,
		FromUserID:     userJulien,
		ToUserID:       userMarie,
		Content:        "deja lu",
		Read:           true,
		CreatedAt:      time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
	})
	f.store.SeedMessage(chat.Message{
		ID:             "msg-mine",
		ConversationID: convID,
		FromUserID:     userMarie,
		ToUserID:       userJulien,
		Content:        "bonjour",
		CreatedAt:      time.Date(2026, 8, 1, 11, 30, 0, 0, time.UTC),
	})

	list, err := chat.LoadOverview(context.Background(), f.store, userMarie)
	require.NoError(t, err)
	require.Len(t, list, 1)

	conv := list[0]
	// Unread counts rows addressed to the viewer and not yet read; the
	// viewer's own messages and already-read rows do not count.
	assert.Equal(t, 3, conv.UnreadCount)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, seeded[len(seeded)-1].ID, conv.LastMessage.ID)
	require.Len(t, conv.Participants, 1)
	assert.Equal(t, userJulien, conv.Participants[0].ID)
	require.NotNil(t, conv.Vehicle)
	assert.Equal(t, vehicleID, conv.Vehicle.ID)
}

func TestLoadOverviewOrdersByRecentActivity(t *testing.T) {
	f := newFixture()
	f.seedMessages(1) // activity at 12:00 in conv-1
	f.store.SaveConversation(chat.Conversation{
		ID:        "conv-quiet",
		Type:      chat.ConversationDirect,
		CreatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}, userMarie, userJulien)
	f.store.SaveConversation(chat.Conversation{
		ID:        "conv-busy",
		Type:      chat.ConversationDirect,
		CreatedAt: time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC),
	}, userMarie, userJulien)
	f.store.SeedMessage(chat.Message{
		ID:             "msg-busy",
		ConversationID: "conv-busy",
		FromUserID:     userJulien,
		ToUserID:       userMarie,
		Content:        "plus recent",
		CreatedAt:      time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC),
	})

	list, err := chat.LoadOverview(context.Background(), f.store, userMarie)
	require.NoError(t, err)
	require.Len(t, list, 3)
	// A message beats conversation age; a quiet thread falls back to CreatedAt.
	assert.Equal(t, "conv-busy", list[0].ID)
	assert.Equal(t, convID, list[1].ID)
	assert.Equal(t, "conv-quiet", list[2].ID)
}

func TestInboxReloadsOnAnyInsert(t *testing.T) {
	f := newFixture()

	inbox := chat.NewInbox(f.store, f.store, nil)
	defer inbox.Close()

	var published [][]chat.Conversation
	inbox.OnChange = func(list []chat.Conversation) { published = append(published, list) }
	require.NoError(t, inbox.Load(context.Background(), userMarie))
	require.Len(t, published, 1)
	assert.Equal(t, 0, published[0][0].UnreadCount)

	_, err := f.store.InsertMessage(context.Background(), chat.MessageDraft{
		ConversationID: convID,
		FromUserID:     userJulien,
		ToUserID:       userMarie,
		Content:        "Bonjour",
	})
	require.NoError(t, err)

	require.Len(t, published, 2)
	current := inbox.Conversations()
	require.Len(t, current, 1)
	assert.Equal(t, 1, current[0].UnreadCount)
	require.NotNil(t, current[0].LastMessage)
	assert.Equal(t, "Bonjour", current[0].LastMessage.Content)
}

func TestInboxKeepsPreviousListOnFailure(t *testing.T) {
	f := newFixture()
	f.seedMessages(1)
	store := &flakyStore{Store: f.store}

	inbox := chat.NewInbox(store, f.store, nil)
	defer inbox.Close()
	require.NoError(t, inbox.Load(context.Background(), userMarie))
	require.Len(t, inbox.Conversations(), 1)

	store.setFailList(true)
	err := inbox.Load(context.Background(), userMarie)
	require.Error(t, err)
	assert.Error(t, inbox.Err())
	assert.Len(t, inbox.Conversations(), 1, "the stale list stays visible")

	store.setFailList(false)
	require.NoError(t, inbox.Load(context.Background(), userMarie))
	assert.NoError(t, inbox.Err())
}

func TestInboxUserSwitchDiscardsOldList(t *testing.T) {
	f := newFixture()
	f.store.SaveConversation(chat.Conversation{
		ID:        "conv-julien-only",
		Type:      chat.ConversationDirect,
		CreatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}, userJulien, "user-third")

	inbox := chat.NewInbox(f.store, f.store, nil)
	defer inbox.Close()

	require.NoError(t, inbox.Load(context.Background(), userMarie))
	require.Len(t, inbox.Conversations(), 1)
	assert.Equal(t, convID, inbox.Conversations()[0].ID)

	require.NoError(t, inbox.Load(context.Background(), userJulien))
	got := inbox.Conversations()
	require.Len(t, got, 2)
	for _, c := range got {
		for _, p := range c.Participants {
			assert.NotEqual(t, userJulien, p.ID)
		}
	}
}

func TestInboxDegradedModeWithoutFeed(t *testing.T) {
	f := newFixture()
	f.seedMessages(1)

	inbox := chat.NewInbox(f.store, deadFeed{}, nil)
	defer inbox.Close()

	require.NoError(t, inbox.Load(context.Background(), userMarie))
	assert.Len(t, inbox.Conversations(), 1)
}

func TestInboxClose(t *testing.T) {
	f := newFixture()
	inbox := chat.NewInbox(f.store, f.store, nil)
	require.NoError(t, inbox.Load(context.Background(), userMarie))
	require.NoError(t, inbox.Close())

	assert.ErrorIs(t, inbox.Load(context.Background(), userMarie), chat.ErrClosed)

	before := len(inbox.Conversations())
	_, err := f.store.InsertMessage(context.Background(), chat.MessageDraft{
		ConversationID: convID,
		FromUserID:     userJulien,
		ToUserID:       userMarie,
		Content:        "apres fermeture",
	})
	require.NoError(t, err)
	assert.Len(t, inbox.Conversations(), before)
}
