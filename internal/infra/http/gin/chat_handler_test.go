package ginserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	authsvc "garagesale/internal/app/services/auth"
	chatsvc "garagesale/internal/app/services/chat"
	"garagesale/internal/client"
	domainitem "garagesale/internal/domain/item"
	domainuser "garagesale/internal/domain/user"
	"garagesale/internal/infra/config"
	"garagesale/internal/infra/obs"
	"garagesale/internal/infra/security"
	"garagesale/internal/infra/storage/memory"
)

type testEnv struct {
	server *httptest.Server
	api    *client.Client
	tokens map[string]string
	users  map[string]string
	itemID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	users := memory.NewUserRepository()
	items := memory.NewItemRepository()
	chats := memory.NewChatRepository()

	authService := &authsvc.Service{
		Users:     users,
		Sessions:  memory.NewSessionStore(),
		Passwords: security.BcryptHasher{Cost: bcrypt.MinCost},
		Tokens:    security.RandomTokenGenerator{},
	}
	chatService := &chatsvc.Service{Chats: chats, Users: users, Items: items}

	handlers := Handlers{
		Auth:           AuthHandler{Service: authService},
		Chat:           ChatHandler{Service: chatService},
		AuthMiddleware: AuthMiddleware{Service: authService}.Handle,
	}
	srv := NewServer(config.Config{Env: "test", HTTPAddr: ":0"}, obs.Middleware{}, obs.HealthHandlers{}, handlers)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	env := &testEnv{
		server: ts,
		api:    &client.Client{BaseURL: ts.URL},
		tokens: map[string]string{},
		users:  map[string]string{},
	}
	for _, name := range []string{"alice", "bob", "mallory"} {
		result, err := authService.Register(ctx, authsvc.RegisterParams{
			Email:    name + "@campus.edu",
			Name:     name,
			Password: "correct horse",
		})
		if err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		env.tokens[name] = result.Token
		env.users[name] = string(result.User.ID)
	}

	item, err := domainitem.NewItem(domainitem.CreateParams{
		ID:         "it1",
		Title:      "Mini fridge",
		Category:   "appliances",
		PriceCents: 4000,
		Seller:     domainuser.ID(env.users["bob"]),
	})
	if err != nil {
		t.Fatalf("build item: %v", err)
	}
	if err := items.Save(ctx, item); err != nil {
		t.Fatalf("save item: %v", err)
	}
	env.itemID = string(item.ID)
	return env
}

func TestChatRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.api.Inbox(ctx, "")
	assertStatus(t, err, http.StatusUnauthorized)
	_, err = env.api.Chat(ctx, "", "whatever")
	assertStatus(t, err, http.StatusUnauthorized)
	_, err = env.api.StartChat(ctx, "garbage-token", env.itemID, env.users["bob"])
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestChatFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.tokens["alice"], env.tokens["bob"]

	created, err := env.api.StartChat(ctx, alice, env.itemID, env.users["bob"])
	if err != nil {
		t.Fatalf("start chat: %v", err)
	}
	if len(created.Messages) != 0 {
		t.Fatalf("fresh chat should be empty")
	}

	// Either participant re-creating lands on the same conversation.
	again, err := env.api.StartChat(ctx, bob, env.itemID, env.users["alice"])
	if err != nil {
		t.Fatalf("start chat as seller: %v", err)
	}
	if created.ID != again.ID {
		t.Fatalf("chat duplicated: %s vs %s", created.ID, again.ID)
	}

	msg, err := env.api.SendMessage(ctx, alice, created.ID, "Is this still available?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.SenderID != env.users["alice"] {
		t.Fatalf("sender = %s", msg.SenderID)
	}

	inbox, err := env.api.Inbox(ctx, bob)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox.Items) != 1 || inbox.Items[0].UnreadCount != 1 {
		t.Fatalf("bob inbox = %+v", inbox.Items)
	}
	if inbox.Items[0].OtherParticipant.ID != env.users["alice"] {
		t.Fatalf("peer = %s", inbox.Items[0].OtherParticipant.ID)
	}

	// Opening the chat marks it read.
	view, err := env.api.Chat(ctx, bob, created.ID)
	if err != nil {
		t.Fatalf("open chat: %v", err)
	}
	if len(view.Messages) != 1 {
		t.Fatalf("messages = %d", len(view.Messages))
	}
	inbox, err = env.api.Inbox(ctx, bob)
	if err != nil {
		t.Fatalf("inbox after open: %v", err)
	}
	if inbox.Items[0].UnreadCount != 0 {
		t.Fatalf("unread after open = %d", inbox.Items[0].UnreadCount)
	}
}

func TestChatErrorStatuses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, mallory := env.tokens["alice"], env.tokens["mallory"]

	created, err := env.api.StartChat(ctx, alice, env.itemID, env.users["bob"])
	if err != nil {
		t.Fatalf("start chat: %v", err)
	}

	_, err = env.api.Chat(ctx, mallory, created.ID)
	assertStatus(t, err, http.StatusForbidden)
	_, err = env.api.SendMessage(ctx, mallory, created.ID, "hi")
	assertStatus(t, err, http.StatusForbidden)
	_, err = env.api.Chat(ctx, alice, "does-not-exist")
	assertStatus(t, err, http.StatusNotFound)
	_, err = env.api.SendMessage(ctx, alice, created.ID, "   ")
	assertStatus(t, err, http.StatusBadRequest)
	_, err = env.api.StartChat(ctx, alice, "no-such-item", env.users["bob"])
	assertStatus(t, err, http.StatusNotFound)
	_, err = env.api.StartChat(ctx, alice, env.itemID, env.users["alice"])
	assertStatus(t, err, http.StatusBadRequest)
	_, err = env.api.StartChat(ctx, alice, env.itemID, "ghost")
	assertStatus(t, err, http.StatusBadRequest)
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError with status %d, got %v", want, err)
	}
	if apiErr.StatusCode != want {
		t.Fatalf("status = %d, want %d", apiErr.StatusCode, want)
	}
}
