package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainchat "garagesale/internal/domain/chat"
	domainitem "garagesale/internal/domain/item"
	domainuser "garagesale/internal/domain/user"
)

// EventPublisher pushes chat events to the broker. Nil disables publishing.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Service implements chat creation, message ingestion, read tracking and the
// inbox view on top of a chat.Repository. Item and user references are
// resolved through their own repositories; everything past existence checks
// belongs to those subsystems.
type Service struct {
	Chats       domainchat.Repository
	Users       domainuser.Repository
	Items       domainitem.Repository
	Publisher   EventPublisher
	TopicPrefix string
	Logger      *slog.Logger
}

// InboxEntry is one row of a user's chat list.
type InboxEntry struct {
	Chat             *domainchat.Chat
	OtherParticipant *domainuser.User
	LastMessage      *domainchat.Message
	UnreadCount      int
}

// StartChat returns the conversation between initiator and peer about an
// item, creating it when none exists yet. Calls with the participants in
// either order converge on the same chat.
func (s *Service) StartChat(ctx context.Context, itemID domainitem.ID, initiatorID, peerID domainuser.ID) (*domainchat.Chat, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	if initiatorID == peerID {
		return nil, domainchat.ErrSelfChat
	}
	if _, err := s.Items.ByID(ctx, itemID); err != nil {
		return nil, err
	}
	for _, id := range []domainuser.ID{initiatorID, peerID} {
		if _, err := s.Users.ByID(ctx, id); err != nil {
			if errors.Is(err, domainuser.ErrNotFound) {
				return nil, domainchat.ErrUnknownParticipant
			}
			return nil, err
		}
	}
	pair := domainchat.SortParticipants(initiatorID, peerID)
	conversation, created, err := s.Chats.GetOrCreate(ctx, itemID, pair, time.Now())
	if err != nil {
		return nil, err
	}
	if created && s.Logger != nil {
		s.Logger.Info("chat created", "chat_id", conversation.ID, "item_id", itemID)
	}
	return conversation, nil
}

// GetChat loads a conversation for one of its participants.
func (s *Service) GetChat(ctx context.Context, chatID domainchat.ID, requesterID domainuser.ID) (*domainchat.Chat, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conversation, err := s.Chats.ByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(requesterID) {
		return nil, domainchat.ErrNotParticipant
	}
	return conversation, nil
}

// OpenChat is GetChat plus the read side effect: every message the viewer has
// not yet seen is marked read. The returned snapshot reflects the marking.
func (s *Service) OpenChat(ctx context.Context, chatID domainchat.ID, viewerID domainuser.ID) (*domainchat.Chat, error) {
	conversation, err := s.GetChat(ctx, chatID, viewerID)
	if err != nil {
		return nil, err
	}
	if err := s.Chats.MarkViewed(ctx, chatID, viewerID); err != nil {
		return nil, err
	}
	for i := range conversation.Messages {
		if !conversation.Messages[i].SeenBy(viewerID) {
			conversation.Messages[i].ReadBy = append(conversation.Messages[i].ReadBy, viewerID)
		}
	}
	return conversation, nil
}

// MarkViewed records that the viewer has seen the chat's current log.
// Viewing has no failure mode for outsiders: a non-participant is a no-op.
func (s *Service) MarkViewed(ctx context.Context, chatID domainchat.ID, viewerID domainuser.ID) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	conversation, err := s.Chats.ByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(viewerID) {
		return nil
	}
	return s.Chats.MarkViewed(ctx, chatID, viewerID)
}

// SendMessage appends one message to a chat the sender participates in.
// The append is atomic in the store, so concurrent sends to the same chat all
// survive and settle into one order.
func (s *Service) SendMessage(ctx context.Context, chatID domainchat.ID, senderID domainuser.ID, content string) (domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return domainchat.Message{}, err
	}
	conversation, err := s.Chats.ByID(ctx, chatID)
	if err != nil {
		return domainchat.Message{}, err
	}
	if !conversation.HasParticipant(senderID) {
		return domainchat.Message{}, domainchat.ErrNotParticipant
	}
	msg, err := domainchat.NewMessage(domainchat.MessageParams{
		ID:      domainchat.MessageID(uuid.NewString()),
		Sender:  senderID,
		Content: content,
		SentAt:  time.Now(),
	})
	if err != nil {
		return domainchat.Message{}, err
	}
	if err := s.Chats.AppendMessage(ctx, chatID, msg); err != nil {
		return domainchat.Message{}, err
	}
	s.publishMessageSent(ctx, conversation, msg)
	return msg, nil
}

// Inbox produces the per-user chat list: peer profile, last message, derived
// unread count, ordered by most recent activity. Pure read; viewing the inbox
// marks nothing.
func (s *Service) Inbox(ctx context.Context, userID domainuser.ID) ([]InboxEntry, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	chats, err := s.Chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]InboxEntry, 0, len(chats))
	for _, conversation := range chats {
		otherID, ok := conversation.OtherParticipant(userID)
		if !ok {
			continue
		}
		other, err := s.Users.ByID(ctx, otherID)
		if err != nil {
			if !errors.Is(err, domainuser.ErrNotFound) {
				return nil, err
			}
			// Peer account gone; keep the thread visible with just the id.
			other = &domainuser.User{ID: otherID}
		}
		entry := InboxEntry{
			Chat:             conversation,
			OtherParticipant: other,
			UnreadCount:      conversation.UnreadCount(userID),
		}
		if last, ok := conversation.LastMessage(); ok {
			entry.LastMessage = &last
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) publishMessageSent(ctx context.Context, conversation *domainchat.Chat, msg domainchat.Message) {
	if s.Publisher == nil {
		return
	}
	data := map[string]any{
		"chat_id":    string(conversation.ID),
		"item_id":    string(conversation.ItemID),
		"message_id": string(msg.ID),
		"sender_id":  string(msg.Sender),
		"sent_at":    msg.SentAt,
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            "chat.message.sent.v1",
		"source":          "garagesale",
		"time":            msg.SentAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("chat event encode failed", "error", err, "chat_id", conversation.ID)
		}
		return
	}
	topic := s.TopicPrefix + "chat.events.v1"
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	// Best effort: a broker outage must never fail the send itself.
	if err := s.Publisher.Publish(ctx, topic, string(conversation.ID), payload, headers); err != nil && s.Logger != nil {
		s.Logger.Warn("chat event publish failed", "error", err, "chat_id", conversation.ID)
	}
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Chats == nil:
		return errors.New("chat: chat repository required")
	case s.Users == nil:
		return errors.New("chat: user repository required")
	case s.Items == nil:
		return errors.New("chat: item repository required")
	default:
		return nil
	}
}
