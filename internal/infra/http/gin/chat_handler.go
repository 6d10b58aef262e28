package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"garagesale/internal/app/dto"
	chatsvc "garagesale/internal/app/services/chat"
	domainchat "garagesale/internal/domain/chat"
	domainitem "garagesale/internal/domain/item"
	domainuser "garagesale/internal/domain/user"
)

// ChatHTTP exposes chat endpoints.
type ChatHTTP interface {
	Inbox(c *gin.Context)
	Get(c *gin.Context)
	Create(c *gin.Context)
	SendMessage(c *gin.Context)
}

type ChatHandler struct {
	Service *chatsvc.Service
	Logger  *slog.Logger
}

// Inbox lists the caller's conversations with unread counts, newest activity
// first. Reading the inbox marks nothing as read.
func (h ChatHandler) Inbox(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	entries, err := h.Service.Inbox(c.Request.Context(), domainuser.ID(p.ID))
	if err != nil {
		h.respondChatError(c, err, "list inbox", "user_id", p.ID)
		return
	}
	inbox := dto.Inbox{Items: make([]dto.InboxEntry, 0, len(entries))}
	for _, entry := range entries {
		row := dto.InboxEntry{
			ChatID:           string(entry.Chat.ID),
			ItemID:           string(entry.Chat.ItemID),
			OtherParticipant: dto.MapUserProfile(entry.OtherParticipant),
			UnreadCount:      entry.UnreadCount,
			LastMessageAt:    entry.Chat.LastMessageAt,
		}
		if entry.LastMessage != nil {
			msg := dto.MapChatMessage(*entry.LastMessage)
			row.LastMessage = &msg
		}
		inbox.Items = append(inbox.Items, row)
	}
	c.JSON(http.StatusOK, inbox)
}

// Get returns one conversation. Opening it marks every pending message as
// read for the caller.
func (h ChatHandler) Get(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	chatID := strings.TrimSpace(c.Param("id"))
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id is required"})
		return
	}
	conversation, err := h.Service.OpenChat(c.Request.Context(), domainchat.ID(chatID), domainuser.ID(p.ID))
	if err != nil {
		h.respondChatError(c, err, "open chat", "chat_id", chatID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapChatView(conversation))
}

// Create starts (or returns) the conversation about an item with another
// user. Repeating the request never produces a second chat.
func (h ChatHandler) Create(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req struct {
		ItemID        string `json:"item_id"`
		ParticipantID string `json:"participant_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.ItemID = strings.TrimSpace(req.ItemID)
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	if req.ItemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_id is required"})
		return
	}
	if req.ParticipantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required"})
		return
	}
	conversation, err := h.Service.StartChat(
		c.Request.Context(),
		domainitem.ID(req.ItemID),
		domainuser.ID(p.ID),
		domainuser.ID(req.ParticipantID),
	)
	if err != nil {
		h.respondChatError(c, err, "start chat", "item_id", req.ItemID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapChatView(conversation))
}

// SendMessage appends a message to a conversation the caller participates in.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	chatID := strings.TrimSpace(c.Param("id"))
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id is required"})
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Service.SendMessage(c.Request.Context(), domainchat.ID(chatID), domainuser.ID(p.ID), req.Content)
	if err != nil {
		h.respondChatError(c, err, "send message", "chat_id", chatID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MapChatMessage(msg))
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	switch {
	case errors.Is(err, domainchat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, domainitem.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
	case errors.Is(err, domainchat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
	case errors.Is(err, domainchat.ErrSelfChat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a chat with yourself"})
	case errors.Is(err, domainchat.ErrUnknownParticipant):
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant does not exist"})
	case errors.Is(err, domainchat.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat request failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat request failed"})
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
