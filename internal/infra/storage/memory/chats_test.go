package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domainchat "garagesale/internal/domain/chat"
	domainuser "garagesale/internal/domain/user"
)

func TestGetOrCreateReturnsSameChatForEitherOrder(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()
	now := time.Now()

	first, created, err := repo.GetOrCreate(ctx, "it1", [2]domainuser.ID{"u1", "u2"}, now)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	second, created, err := repo.GetOrCreate(ctx, "it1", [2]domainuser.ID{"u2", "u1"}, now)
	if err != nil || created {
		t.Fatalf("second create: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one chat, got %s and %s", first.ID, second.ID)
	}
	third, created, err := repo.GetOrCreate(ctx, "it2", [2]domainuser.ID{"u1", "u2"}, now)
	if err != nil || !created {
		t.Fatalf("different item: created=%v err=%v", created, err)
	}
	if third.ID == first.ID {
		t.Fatalf("different items must not share a chat")
	}
}

// N concurrent appends to one chat must all survive and be visible to every
// reader in one consistent order.
func TestConcurrentAppendsLoseNothing(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()

	c, _, err := repo.GetOrCreate(ctx, "it1", [2]domainuser.ID{"u1", "u2"}, time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "u1"
			if i%2 == 0 {
				sender = "u2"
			}
			msg, err := domainchat.NewMessage(domainchat.MessageParams{
				ID:      domainchat.MessageID(fmt.Sprintf("m%03d", i)),
				Sender:  domainuser.ID(sender),
				Content: fmt.Sprintf("message %d", i),
				SentAt:  time.Now(),
			})
			if err != nil {
				t.Errorf("build message %d: %v", i, err)
				return
			}
			if err := repo.AppendMessage(ctx, c.ID, msg); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	stored, err := repo.ByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(stored.Messages) != n {
		t.Fatalf("messages = %d, want %d", len(stored.Messages), n)
	}
	seen := make(map[domainchat.MessageID]struct{}, n)
	for _, msg := range stored.Messages {
		if _, dup := seen[msg.ID]; dup {
			t.Fatalf("duplicate message %s", msg.ID)
		}
		seen[msg.ID] = struct{}{}
	}

	// Two readers observe the same order.
	again, err := repo.ByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	for i := range stored.Messages {
		if stored.Messages[i].ID != again.Messages[i].ID {
			t.Fatalf("readers disagree at position %d", i)
		}
	}
}

func TestAppendUpdatesLastMessageAt(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()

	c, _, _ := repo.GetOrCreate(ctx, "it1", [2]domainuser.ID{"u1", "u2"}, time.Now().Add(-time.Hour))
	sentAt := time.Now().UTC()
	msg, err := domainchat.NewMessage(domainchat.MessageParams{
		ID: "m1", Sender: "u1", Content: "hey", SentAt: sentAt,
	})
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if err := repo.AppendMessage(ctx, c.ID, msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	stored, _ := repo.ByID(ctx, c.ID)
	if !stored.LastMessageAt.Equal(sentAt) {
		t.Fatalf("LastMessageAt = %v, want %v", stored.LastMessageAt, sentAt)
	}
}

func TestMarkViewedIsMonotonic(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()

	c, _, _ := repo.GetOrCreate(ctx, "it1", [2]domainuser.ID{"u1", "u2"}, time.Now())
	for i := 0; i < 3; i++ {
		msg, err := domainchat.NewMessage(domainchat.MessageParams{
			ID:      domainchat.MessageID(fmt.Sprintf("m%d", i)),
			Sender:  "u1",
			Content: "hello",
			SentAt:  time.Now(),
		})
		if err != nil {
			t.Fatalf("build message: %v", err)
		}
		if err := repo.AppendMessage(ctx, c.ID, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := repo.MarkViewed(ctx, c.ID, "u2"); err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	stored, _ := repo.ByID(ctx, c.ID)
	if got := stored.UnreadCount("u2"); got != 0 {
		t.Fatalf("unread after view = %d, want 0", got)
	}
	// Marking again must not duplicate readers.
	if err := repo.MarkViewed(ctx, c.ID, "u2"); err != nil {
		t.Fatalf("second mark viewed: %v", err)
	}
	stored, _ = repo.ByID(ctx, c.ID)
	for _, msg := range stored.Messages {
		count := 0
		for _, reader := range msg.ReadBy {
			if reader == "u2" {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("message %s lists u2 %d times", msg.ID, count)
		}
	}
}

func TestListForUserSortsByRecency(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()

	old, _, _ := repo.GetOrCreate(ctx, "it1", [2]domainuser.ID{"u1", "u2"}, time.Now().Add(-2*time.Hour))
	fresh, _, _ := repo.GetOrCreate(ctx, "it2", [2]domainuser.ID{"u1", "u3"}, time.Now().Add(-time.Hour))

	msg, err := domainchat.NewMessage(domainchat.MessageParams{ID: "m1", Sender: "u2", Content: "bump", SentAt: time.Now()})
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if err := repo.AppendMessage(ctx, old.ID, msg); err != nil {
		t.Fatalf("append: %v", err)
	}

	chats, err := repo.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("chats = %d, want 2", len(chats))
	}
	if chats[0].ID != old.ID || chats[1].ID != fresh.ID {
		t.Fatalf("expected the bumped chat first")
	}

	none, err := repo.ListForUser(ctx, "u9")
	if err != nil {
		t.Fatalf("list for stranger: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("stranger should have no chats")
	}
}
