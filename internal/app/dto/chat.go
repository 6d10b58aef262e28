package dto

import (
	"time"

	domainchat "garagesale/internal/domain/chat"
)

// ChatMessage is a single message payload.
type ChatMessage struct {
	ID       string    `json:"id"`
	SenderID string    `json:"sender_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
	ReadBy   []string  `json:"read_by"`
}

// ChatView is the full conversation as returned to a participant.
type ChatView struct {
	ID            string        `json:"id"`
	ItemID        string        `json:"item_id"`
	Participants  []string      `json:"participants"`
	Messages      []ChatMessage `json:"messages"`
	LastMessageAt time.Time     `json:"last_message_at"`
	CreatedAt     time.Time     `json:"created_at"`
}

// InboxEntry annotates one conversation with what the inbox list renders.
type InboxEntry struct {
	ChatID           string       `json:"chat_id"`
	ItemID           string       `json:"item_id"`
	OtherParticipant UserProfile  `json:"other_participant"`
	LastMessage      *ChatMessage `json:"last_message,omitempty"`
	UnreadCount      int          `json:"unread_count"`
	LastMessageAt    time.Time    `json:"last_message_at"`
}

// Inbox is the per-user chat list.
type Inbox struct {
	Items []InboxEntry `json:"items"`
}

func MapChatMessage(msg domainchat.Message) ChatMessage {
	readBy := make([]string, 0, len(msg.ReadBy))
	for _, id := range msg.ReadBy {
		readBy = append(readBy, string(id))
	}
	return ChatMessage{
		ID:       string(msg.ID),
		SenderID: string(msg.Sender),
		Content:  msg.Content,
		SentAt:   msg.SentAt,
		ReadBy:   readBy,
	}
}

func MapChatView(chat *domainchat.Chat) ChatView {
	if chat == nil {
		return ChatView{}
	}
	messages := make([]ChatMessage, 0, len(chat.Messages))
	for _, msg := range chat.Messages {
		messages = append(messages, MapChatMessage(msg))
	}
	return ChatView{
		ID:            string(chat.ID),
		ItemID:        string(chat.ItemID),
		Participants:  []string{string(chat.Participants[0]), string(chat.Participants[1])},
		Messages:      messages,
		LastMessageAt: chat.LastMessageAt,
		CreatedAt:     chat.CreatedAt,
	}
}
