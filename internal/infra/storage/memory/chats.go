package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domainchat "garagesale/internal/domain/chat"
	domainitem "garagesale/internal/domain/item"
	domainuser "garagesale/internal/domain/user"
)

// ChatRepository keeps conversations in memory. The mutex gives appends the
// same single-total-order guarantee the mongo store gets from an atomic $push.
type ChatRepository struct {
	mu        sync.RWMutex
	byID      map[domainchat.ID]*domainchat.Chat
	byPairKey map[string]domainchat.ID
}

func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		byID:      make(map[domainchat.ID]*domainchat.Chat),
		byPairKey: make(map[string]domainchat.ID),
	}
}

func (r *ChatRepository) GetOrCreate(ctx context.Context, itemID domainitem.ID, participants [2]domainuser.ID, now time.Time) (*domainchat.Chat, bool, error) {
	pair := domainchat.SortParticipants(participants[0], participants[1])
	key := domainchat.PairKey(itemID, pair[0], pair[1])

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPairKey[key]; ok {
		if existing, ok := r.byID[id]; ok {
			return cloneChat(existing), false, nil
		}
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	created := &domainchat.Chat{
		ID:            domainchat.ID(uuid.NewString()),
		ItemID:        itemID,
		Participants:  pair,
		Messages:      nil,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	r.byID[created.ID] = created
	r.byPairKey[key] = created.ID
	return cloneChat(created), true, nil
}

func (r *ChatRepository) ByID(ctx context.Context, id domainchat.ID) (*domainchat.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if existing, ok := r.byID[id]; ok {
		return cloneChat(existing), nil
	}
	return nil, domainchat.ErrNotFound
}

func (r *ChatRepository) ListForUser(ctx context.Context, userID domainuser.ID) ([]*domainchat.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domainchat.Chat, 0)
	for _, existing := range r.byID {
		if existing.HasParticipant(userID) {
			result = append(result, cloneChat(existing))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastMessageAt.Equal(result[j].LastMessageAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	return result, nil
}

func (r *ChatRepository) AppendMessage(ctx context.Context, chatID domainchat.ID, msg domainchat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[chatID]
	if !ok {
		return domainchat.ErrNotFound
	}
	existing.Messages = append(existing.Messages, cloneMessage(msg))
	existing.LastMessageAt = msg.SentAt
	return nil
}

func (r *ChatRepository) MarkViewed(ctx context.Context, chatID domainchat.ID, viewer domainuser.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[chatID]
	if !ok {
		return domainchat.ErrNotFound
	}
	for i := range existing.Messages {
		if !existing.Messages[i].SeenBy(viewer) {
			existing.Messages[i].ReadBy = append(existing.Messages[i].ReadBy, viewer)
		}
	}
	return nil
}

func cloneChat(c *domainchat.Chat) *domainchat.Chat {
	if c == nil {
		return nil
	}
	copyChat := *c
	copyChat.Messages = make([]domainchat.Message, len(c.Messages))
	for i, msg := range c.Messages {
		copyChat.Messages[i] = cloneMessage(msg)
	}
	return &copyChat
}

func cloneMessage(m domainchat.Message) domainchat.Message {
	m.ReadBy = append([]domainuser.ID(nil), m.ReadBy...)
	return m
}
