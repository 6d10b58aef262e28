package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"garagesale/internal/app/dto"
)

// fakeChatServer serves one conversation and lets tests mutate it between
// polls.
type fakeChatServer struct {
	mu       sync.Mutex
	view     dto.ChatView
	failNext int
	gone     bool
	fetches  int
}

func (f *fakeChatServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats/c1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.gone {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "chat not found"})
			return
		}
		if f.failNext > 0 {
			f.failNext--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.fetches++
		_ = json.NewEncoder(w).Encode(f.view)
	})
	mux.HandleFunc("POST /api/chats/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		msg := dto.ChatMessage{ID: "m-new", SenderID: "u1", Content: req.Content, SentAt: time.Now()}
		f.view.Messages = append(f.view.Messages, msg)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(msg)
	})
	return mux
}

func (f *fakeChatServer) addMessage(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.Messages = append(f.view.Messages, dto.ChatMessage{
		ID: "m-server", SenderID: "u2", Content: content, SentAt: time.Now(),
	})
}

func newFakeChatServer(t *testing.T) (*fakeChatServer, *Client) {
	t.Helper()
	fake := &fakeChatServer{
		view: dto.ChatView{
			ID:           "c1",
			ItemID:       "it1",
			Participants: []string{"u1", "u2"},
			Messages:     []dto.ChatMessage{{ID: "m1", SenderID: "u2", Content: "hello"}},
		},
	}
	ts := httptest.NewServer(fake.handler())
	t.Cleanup(ts.Close)
	return fake, &Client{BaseURL: ts.URL}
}

func TestChatPollerPicksUpNewMessages(t *testing.T) {
	fake, api := newFakeChatServer(t)

	updates := make(chan dto.ChatView, 16)
	poller := &ChatPoller{
		Client:   api,
		Token:    "tok",
		ChatID:   "c1",
		Interval: 10 * time.Millisecond,
		OnUpdate: func(v dto.ChatView) { updates <- v },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	// First update is the initial fetch.
	select {
	case v := <-updates:
		if len(v.Messages) != 1 {
			t.Fatalf("initial snapshot has %d messages", len(v.Messages))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial update")
	}

	fake.addMessage("are you there?")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-updates:
			if len(v.Messages) == 2 {
				cancel()
				if err := <-done; !errors.Is(err, context.Canceled) {
					t.Fatalf("Run returned %v, want context.Canceled", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("poller never observed the new message")
		}
	}
}

func TestChatPollerSurfacesInitialFetchError(t *testing.T) {
	fake, api := newFakeChatServer(t)
	fake.failNext = 1

	poller := &ChatPoller{Client: api, Token: "tok", ChatID: "c1", Interval: time.Minute}
	err := poller.Run(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Run = %v, want APIError 500", err)
	}
	if _, ok := poller.Snapshot(); ok {
		t.Fatal("no snapshot should exist after a failed initial fetch")
	}
}

func TestChatPollerSwallowsTickFailures(t *testing.T) {
	fake, api := newFakeChatServer(t)

	updates := make(chan dto.ChatView, 16)
	poller := &ChatPoller{
		Client:   api,
		Token:    "tok",
		ChatID:   "c1",
		Interval: 10 * time.Millisecond,
		OnUpdate: func(v dto.ChatView) { updates <- v },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial update")
	}

	// A transient failure is retried on the next tick, not surfaced.
	fake.mu.Lock()
	fake.failNext = 2
	fake.mu.Unlock()
	fake.addMessage("after the blip")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-updates:
			if len(v.Messages) == 2 {
				return
			}
		case err := <-done:
			t.Fatalf("poller stopped on a transient failure: %v", err)
		case <-deadline:
			t.Fatal("poller never recovered")
		}
	}
}

func TestChatPollerStopsWhenChatGone(t *testing.T) {
	fake, api := newFakeChatServer(t)

	poller := &ChatPoller{Client: api, Token: "tok", ChatID: "c1", Interval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	fake.mu.Lock()
	fake.gone = true
	fake.mu.Unlock()

	select {
	case err := <-done:
		if !errors.Is(err, ErrChatGone) {
			t.Fatalf("Run = %v, want ErrChatGone", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on 404")
	}
}

func TestChatPollerSendRefreshesImmediately(t *testing.T) {
	_, api := newFakeChatServer(t)

	// A long interval proves the refresh comes from Send, not a tick.
	poller := &ChatPoller{Client: api, Token: "tok", ChatID: "c1", Interval: time.Hour}

	msg, err := poller.Send(context.Background(), "on my way")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Content != "on my way" {
		t.Fatalf("echoed message = %+v", msg)
	}
	snapshot, ok := poller.Snapshot()
	if !ok {
		t.Fatal("send should prime the snapshot via immediate refetch")
	}
	if len(snapshot.Messages) != 2 {
		t.Fatalf("snapshot has %d messages, want 2", len(snapshot.Messages))
	}
}

func TestInboxPollerRefreshes(t *testing.T) {
	var mu sync.Mutex
	inbox := dto.Inbox{Items: []dto.InboxEntry{{ChatID: "c1", UnreadCount: 1}}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewEncoder(w).Encode(inbox)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	updates := make(chan dto.Inbox, 16)
	poller := &InboxPoller{
		Client:   &Client{BaseURL: ts.URL},
		Token:    "tok",
		Interval: 10 * time.Millisecond,
		OnUpdate: func(in dto.Inbox) { updates <- in },
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = poller.Run(ctx) }()

	select {
	case in := <-updates:
		if len(in.Items) != 1 || in.Items[0].UnreadCount != 1 {
			t.Fatalf("inbox = %+v", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial inbox update")
	}

	mu.Lock()
	inbox.Items[0].UnreadCount = 0
	mu.Unlock()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case in := <-updates:
			if in.Items[0].UnreadCount == 0 {
				return
			}
		case <-deadline:
			t.Fatal("inbox poller never refreshed")
		}
	}
}
