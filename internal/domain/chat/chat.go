package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"garagesale/internal/domain/item"
	"garagesale/internal/domain/user"
)

var (
	ErrNotFound           = errors.New("chat: not found")
	ErrNotParticipant     = errors.New("chat: not a participant")
	ErrSelfChat           = errors.New("chat: cannot start a chat with yourself")
	ErrUnknownParticipant = errors.New("chat: participant does not exist")
	ErrEmptyContent       = errors.New("chat: message content is required")
	ErrItemRequired       = errors.New("chat: item is required")
	ErrSenderRequired     = errors.New("chat: sender is required")
)

type ID string

type MessageID string

// Message is one timestamped, attributed entry in a chat's log. Content is
// immutable once appended; only ReadBy grows.
type Message struct {
	ID      MessageID
	Sender  user.ID
	Content string
	SentAt  time.Time
	ReadBy  []user.ID
}

type MessageParams struct {
	ID      MessageID
	Sender  user.ID
	Content string
	SentAt  time.Time
}

// NewMessage validates and builds a message. The sender is recorded in ReadBy
// from the start: authors never see their own messages as unread.
func NewMessage(params MessageParams) (Message, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return Message{}, errors.New("chat: message id is required")
	}
	sender := user.ID(strings.TrimSpace(string(params.Sender)))
	if sender == "" {
		return Message{}, ErrSenderRequired
	}
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return Message{}, ErrEmptyContent
	}
	sentAt := params.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	return Message{
		ID:      params.ID,
		Sender:  sender,
		Content: content,
		SentAt:  sentAt.UTC(),
		ReadBy:  []user.ID{sender},
	}, nil
}

func (m Message) SeenBy(viewer user.ID) bool {
	for _, id := range m.ReadBy {
		if id == viewer {
			return true
		}
	}
	return false
}

// Chat is a conversation about one item between exactly two participants.
// Participants are stored sorted so the (item, pair) identity is
// order-independent.
type Chat struct {
	ID            ID
	ItemID        item.ID
	Participants  [2]user.ID
	Messages      []Message
	LastMessageAt time.Time
	CreatedAt     time.Time
}

func (c *Chat) HasParticipant(id user.ID) bool {
	return c.Participants[0] == id || c.Participants[1] == id
}

// OtherParticipant resolves the peer of the given participant.
func (c *Chat) OtherParticipant(id user.ID) (user.ID, bool) {
	switch id {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	default:
		return "", false
	}
}

// LastMessage returns the newest entry of the log, if any. A chat may exist
// with an empty log right after creation.
func (c *Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// UnreadCount derives the number of messages the viewer has not seen.
// It is recomputed from ReadBy on every call rather than cached, so it cannot
// drift from the log. Messages authored by the viewer never count.
func (c *Chat) UnreadCount(viewer user.ID) int {
	count := 0
	for _, msg := range c.Messages {
		if msg.Sender == viewer {
			continue
		}
		if !msg.SeenBy(viewer) {
			count++
		}
	}
	return count
}

// SortParticipants puts a pair into its canonical stored order.
func SortParticipants(a, b user.ID) [2]user.ID {
	if b < a {
		a, b = b, a
	}
	return [2]user.ID{a, b}
}

// PairKey is the order-independent identity of a conversation: one item, one
// participant pair. Stores index it uniquely so repeated "start chat" actions
// converge on a single chat.
func PairKey(itemID item.ID, a, b user.ID) string {
	pair := SortParticipants(a, b)
	return string(itemID) + "|" + string(pair[0]) + "|" + string(pair[1])
}

type Repository interface {
	// GetOrCreate returns the chat for (item, pair), creating it when absent.
	// The second result reports whether a new chat was created.
	GetOrCreate(ctx context.Context, itemID item.ID, participants [2]user.ID, now time.Time) (*Chat, bool, error)
	ByID(ctx context.Context, id ID) (*Chat, error)
	// ListForUser returns every chat the user participates in, most recent
	// activity first.
	ListForUser(ctx context.Context, userID user.ID) ([]*Chat, error)
	// AppendMessage atomically appends msg and advances LastMessageAt to
	// msg.SentAt. Concurrent appends to one chat must all survive and settle
	// into a single order.
	AppendMessage(ctx context.Context, chatID ID, msg Message) error
	// MarkViewed adds viewer to the ReadBy set of every message that does not
	// already contain it.
	MarkViewed(ctx context.Context, chatID ID, viewer user.ID) error
}
