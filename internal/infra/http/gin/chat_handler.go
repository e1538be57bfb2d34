package ginserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"passionautos/internal/app/dto"
	"passionautos/internal/chat"
)

type ChatHTTP interface {
	ListConversations(c *gin.Context)
	EnsureConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	Send(c *gin.Context)
	MarkRead(c *gin.Context)
	Stream(c *gin.Context)
}

// ChatStore extends the core store with conversation bootstrap.
type ChatStore interface {
	chat.Store
	EnsureConversation(ctx context.Context, vehicleID, starterID, peerID string) (chat.Conversation, error)
}

type ChatHandler struct {
	Store  ChatStore
	Feed   chat.Feed
	Logger *slog.Logger
}

type ensureConversationRequest struct {
	VehicleID string `json:"vehicle_id"`
	PeerID    string `json:"peer_id"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	ToUserID       string `json:"to_user_id"`
	VehicleID      string `json:"vehicle_id"`
	Content        string `json:"content"`
}

// ListConversations returns the caller's inbox, most recent activity first.
func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conversations, err := chat.LoadOverview(c.Request.Context(), h.Store, p.ID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewConversationList(conversations))
}

// EnsureConversation returns the existing thread between the caller and the
// peer for a vehicle, creating one when none exists.
func (h ChatHandler) EnsureConversation(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req ensureConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	peerID := strings.TrimSpace(req.PeerID)
	if peerID == "" || peerID == p.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peer_id must name another user"})
		return
	}
	conversation, err := h.Store.EnsureConversation(c.Request.Context(), strings.TrimSpace(req.VehicleID), p.ID, peerID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewConversation(conversation))
}

// ListMessages returns the newest page of a thread in ascending order and
// marks the caller's unread rows as read.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	page, err := h.Store.RecentMessages(c.Request.Context(), conversationID, chat.PageSize)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	hasMore := len(page) >= chat.PageSize
	ascending := make([]chat.Message, len(page))
	for i, m := range page {
		ascending[len(page)-1-i] = m
	}
	if _, err := h.Store.MarkConversationRead(c.Request.Context(), conversationID, p.ID); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("mark conversation read failed", "conversation_id", conversationID, "error", err)
		}
	}
	c.JSON(http.StatusOK, dto.NewChatMessageList(ascending, hasMore))
}

// Send inserts a message authored by the caller.
func (h ChatHandler) Send(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	draft := chat.MessageDraft{
		ConversationID: strings.TrimSpace(req.ConversationID),
		FromUserID:     p.ID,
		ToUserID:       strings.TrimSpace(req.ToUserID),
		VehicleID:      strings.TrimSpace(req.VehicleID),
		Content:        strings.TrimSpace(req.Content),
	}
	if err := draft.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	message, err := h.Store.InsertMessage(c.Request.Context(), draft)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewChatMessage(message))
}

// MarkRead flips the caller's unread rows in a thread.
func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	updated, err := h.Store.MarkConversationRead(c.Request.Context(), c.Param("id"), p.ID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Stream serves a thread over server-sent events: one history event with the
// newest page, then a message event per live insert until the client leaves.
func (h ChatHandler) Stream(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Feed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed unavailable"})
		return
	}

	thread := chat.NewThread(h.Store, h.Feed, h.Logger)
	events := make(chan chat.Message, 64)
	thread.OnAppend = func(m chat.Message) {
		select {
		case events <- m:
		default:
			if h.Logger != nil {
				h.Logger.Warn("stream consumer too slow, dropping message", "message_id", m.ID)
			}
		}
	}
	if err := thread.Load(c.Request.Context(), c.Param("id"), p.ID); err != nil {
		h.respondStoreError(c, err)
		return
	}
	defer thread.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	snapshot := thread.Messages()
	sent := make(map[string]struct{}, len(snapshot))
	for _, m := range snapshot {
		sent[m.ID] = struct{}{}
	}
	c.SSEvent("history", dto.NewChatMessageList(snapshot, thread.HasMore()))
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		for {
			select {
			case <-ctx.Done():
				return false
			case m := <-events:
				// An event that raced the initial load is already in the
				// snapshot; emitting it again would duplicate it client-side.
				if _, ok := sent[m.ID]; ok {
					continue
				}
				sent[m.ID] = struct{}{}
				c.SSEvent("message", dto.NewChatMessage(m))
				return true
			}
		}
	})
}

func (h ChatHandler) respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, chat.ErrUserNotFound),
		errors.Is(err, chat.ErrVehicleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat operation failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
