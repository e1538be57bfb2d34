package chat_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passionautos/internal/chat"
)

func TestThreadLoadReturnsNewestPageAscending(t *testing.T) {
	f := newFixture()
	seeded := f.seedMessages(3)

	thread := chat.NewThread(f.store, f.store, nil)
	defer thread.Close()
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))

	got := thread.Messages()
	require.Len(t, got, 3)
	for i, m := range got {
		assert.Equal(t, seeded[i].ID, m.ID)
		assert.Equal(t, chat.MessagePersisted, m.State)
	}
	assert.False(t, thread.HasMore())
	assert.NoError(t, thread.Err())
}

func TestThreadLoadPagination(t *testing.T) {
	t.Run("full page reports more history", func(t *testing.T) {
		f := newFixture()
		seeded := f.seedMessages(chat.PageSize + 5)

		thread := chat.NewThread(f.store, f.store, nil)
		defer thread.Close()
		require.NoError(t, thread.Load(context.Background(), convID, userMarie))

		got := thread.Messages()
		require.Len(t, got, chat.PageSize)
		// The page holds the newest rows; the 5 oldest fall off.
		assert.Equal(t, seeded[5].ID, got[0].ID)
		assert.Equal(t, seeded[len(seeded)-1].ID, got[len(got)-1].ID)
		assert.True(t, thread.HasMore())
	})

	t.Run("exact page size still reports more", func(t *testing.T) {
		// HasMore is derived from page fullness alone, even when the page
		// happens to hold the entire history.
		f := newFixture()
		f.seedMessages(chat.PageSize)

		thread := chat.NewThread(f.store, f.store, nil)
		defer thread.Close()
		require.NoError(t, thread.Load(context.Background(), convID, userMarie))

		assert.Len(t, thread.Messages(), chat.PageSize)
		assert.True(t, thread.HasMore())
	})

	t.Run("short page reports no more history", func(t *testing.T) {
		f := newFixture()
		f.seedMessages(chat.PageSize - 1)

		thread := chat.NewThread(f.store, f.store, nil)
		defer thread.Close()
		require.NoError(t, thread.Load(context.Background(), convID, userMarie))

		assert.Len(t, thread.Messages(), chat.PageSize-1)
		assert.False(t, thread.HasMore())
	})
}

func TestThreadLoadSweepsViewerUnread(t *testing.T) {
	f := newFixture()
	f.seedMessages(2) // Julien -> Marie, unread
	f.store.SeedMessage(chat.Message{
		ID:             "msg-outgoing",
		ConversationID: convID,
		FromUserID:     userMarie,
		ToUserID:       userJulien,
		Content:        "toujours disponible",
		CreatedAt:      time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC),
	})

	thread := chat.NewThread(f.store, f.store, nil)
	defer thread.Close()
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))

	rows, err := f.store.MessagesForConversation(context.Background(), convID)
	require.NoError(t, err)
	for _, m := range rows {
		if m.ToUserID == userMarie {
			assert.True(t, m.Read, "row %s addressed to the viewer should be swept", m.ID)
		} else {
			assert.False(t, m.Read, "row %s addressed to the peer must stay untouched", m.ID)
		}
	}
}

func TestThreadSendOptimisticLifecycle(t *testing.T) {
	f := newFixture()
	f.seedMessages(2)

	thread := chat.NewThread(f.store, f.store, nil)
	defer thread.Close()

	var appended []chat.Message
	thread.OnAppend = func(m chat.Message) { appended = append(appended, m) }
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))

	require.NoError(t, thread.Send(context.Background(), "Oui, toujours disponible", userJulien, vehicleID))

	// First a pending entry, then the authoritative row from the feed.
	require.Len(t, appended, 2)
	assert.Equal(t, chat.MessagePending, appended[0].State)
	assert.Equal(t, chat.MessagePersisted, appended[1].State)
	assert.NotEqual(t, appended[0].ID, appended[1].ID)
	assert.Equal(t, appended[0].Content, appended[1].Content)

	// Exactly one copy remains, the persisted one at the tail.
	got := thread.Messages()
	require.Len(t, got, 3)
	last := got[len(got)-1]
	assert.Equal(t, appended[1].ID, last.ID)
	assert.Equal(t, chat.MessagePersisted, last.State)
	for _, m := range got {
		assert.NotEqual(t, chat.MessagePending, m.State)
	}
}

func TestThreadSendFailureRemovesPendingEntry(t *testing.T) {
	f := newFixture()
	f.seedMessages(1)
	store := &flakyStore{Store: f.store, failInsert: true}

	thread := chat.NewThread(store, f.store, nil)
	defer thread.Close()
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))

	err := thread.Send(context.Background(), "perdu", userJulien, vehicleID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	got := thread.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, chat.MessagePersisted, got[0].State)
}

func TestThreadSendValidation(t *testing.T) {
	f := newFixture()
	thread := chat.NewThread(f.store, f.store, nil)
	defer thread.Close()

	err := thread.Send(context.Background(), "bonjour", userJulien, "")
	assert.Error(t, err, "sending before load must fail")

	require.NoError(t, thread.Load(context.Background(), convID, userMarie))
	assert.Error(t, thread.Send(context.Background(), "   ", userJulien, ""))
	assert.Error(t, thread.Send(context.Background(), "bonjour", "", ""))
}

func TestThreadFeedReplayIsDeduplicated(t *testing.T) {
	f := newFixture()
	f.seedMessages(1)
	feed := &scriptedFeed{}

	thread := chat.NewThread(f.store, feed, nil)
	defer thread.Close()
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))
	assert.Equal(t, convID, feed.filter)

	echo := chat.Message{
		ID:             "msg-echo",
		ConversationID: convID,
		FromUserID:     userJulien,
		ToUserID:       userMarie,
		Content:        "re",
		CreatedAt:      time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC),
	}
	feed.emit(echo)
	feed.emit(echo)

	got := thread.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "msg-echo", got[1].ID)
}

func TestThreadIncomingMessageAppendsAndSweeps(t *testing.T) {
	f := newFixture()

	thread := chat.NewThread(f.store, f.store, nil)
	defer thread.Close()
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))

	// The peer inserts through the store; the feed carries it into the thread.
	_, err := f.store.InsertMessage(context.Background(), chat.MessageDraft{
		ConversationID: convID,
		FromUserID:     userJulien,
		ToUserID:       userMarie,
		VehicleID:      vehicleID,
		Content:        "Bonjour",
	})
	require.NoError(t, err)

	got := thread.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "Bonjour", got[0].Content)

	rows, err := f.store.MessagesForConversation(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Read, "an incoming row is swept as soon as it is displayed")
}

func TestThreadIgnoresOtherConversations(t *testing.T) {
	f := newFixture()
	f.store.SaveConversation(chat.Conversation{
		ID:        "conv-other",
		Type:      chat.ConversationDirect,
		CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}, userMarie, userJulien)

	thread := chat.NewThread(f.store, f.store, nil)
	defer thread.Close()
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))

	_, err := f.store.InsertMessage(context.Background(), chat.MessageDraft{
		ConversationID: "conv-other",
		FromUserID:     userJulien,
		ToUserID:       userMarie,
		Content:        "ailleurs",
	})
	require.NoError(t, err)

	assert.Empty(t, thread.Messages())
}

func TestThreadSwitchConversationResetsState(t *testing.T) {
	f := newFixture()
	f.seedMessages(2)
	f.store.SaveConversation(chat.Conversation{
		ID:        "conv-2",
		Type:      chat.ConversationDirect,
		CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}, userMarie, userJulien)
	f.store.SeedMessage(chat.Message{
		ID:             "msg-conv2",
		ConversationID: "conv-2",
		FromUserID:     userJulien,
		ToUserID:       userMarie,
		Content:        "autre fil",
		CreatedAt:      time.Date(2026, 8, 1, 15, 0, 0, 0, time.UTC),
	})

	thread := chat.NewThread(f.store, f.store, nil)
	defer thread.Close()
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))
	require.Len(t, thread.Messages(), 2)

	require.NoError(t, thread.Load(context.Background(), "conv-2", userMarie))
	got := thread.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "msg-conv2", got[0].ID)
}

func TestThreadDegradedModeWithoutFeed(t *testing.T) {
	f := newFixture()
	f.seedMessages(2)

	thread := chat.NewThread(f.store, deadFeed{}, nil)
	defer thread.Close()

	// History loads even when the subscription cannot be established.
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))
	assert.Len(t, thread.Messages(), 2)
}

func TestThreadReadSweepFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	f.seedMessages(2)
	store := &flakyStore{Store: f.store, failMark: true}

	thread := chat.NewThread(store, f.store, nil)
	defer thread.Close()

	require.NoError(t, thread.Load(context.Background(), convID, userMarie))
	assert.Len(t, thread.Messages(), 2)
}

func TestThreadClose(t *testing.T) {
	f := newFixture()
	thread := chat.NewThread(f.store, f.store, nil)
	require.NoError(t, thread.Load(context.Background(), convID, userMarie))
	require.NoError(t, thread.Close())

	assert.ErrorIs(t, thread.Load(context.Background(), convID, userMarie), chat.ErrClosed)
	assert.ErrorIs(t, thread.Send(context.Background(), "tard", userJulien, ""), chat.ErrClosed)

	_, err := f.store.InsertMessage(context.Background(), chat.MessageDraft{
		ConversationID: convID,
		FromUserID:     userJulien,
		ToUserID:       userMarie,
		Content:        "apres fermeture",
	})
	require.NoError(t, err)
	assert.Empty(t, thread.Messages())
}

func TestMessageDraftValidate(t *testing.T) {
	valid := chat.MessageDraft{
		ConversationID: convID,
		FromUserID:     userMarie,
		ToUserID:       userJulien,
		Content:        "ok",
	}
	assert.NoError(t, valid.Validate())

	cases := map[string]chat.MessageDraft{
		"missing conversation": {FromUserID: userMarie, ToUserID: userJulien, Content: "ok"},
		"missing sender":       {ConversationID: convID, ToUserID: userJulien, Content: "ok"},
		"missing recipient":    {ConversationID: convID, FromUserID: userMarie, Content: "ok"},
		"blank content":        {ConversationID: convID, FromUserID: userMarie, ToUserID: userJulien, Content: strings.Repeat(" ", 3)},
	}
	for name, draft := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, draft.Validate())
		})
	}
}
