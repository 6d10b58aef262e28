package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"garagesale/internal/app/dto"
)

// ErrChatGone terminates a chat poller: the chat no longer exists or access
// was revoked. Callers navigate the viewer away instead of retrying.
var ErrChatGone = errors.New("client: chat no longer accessible")

// ChatPoller keeps a local copy of one conversation fresh by re-fetching it on
// a fixed interval. Each fetch replaces the whole snapshot; there is no
// diffing. Ticks never overlap: the loop runs on one goroutine and a fetch
// finishes before the next tick is handled.
type ChatPoller struct {
	Client   *Client
	Token    string
	ChatID   string
	Interval time.Duration
	OnUpdate func(dto.ChatView)
	Logger   *slog.Logger

	mu       sync.Mutex
	snapshot dto.ChatView
	primed   bool
}

// Run fetches the chat once, surfacing any error, then polls until ctx is
// cancelled. A failed tick is logged and retried on the next interval; only a
// 404/403 stops the loop, with ErrChatGone.
func (p *ChatPoller) Run(ctx context.Context) error {
	if err := p.refresh(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.refresh(ctx); err != nil {
				if chatGone(err) {
					return ErrChatGone
				}
				if p.Logger != nil {
					p.Logger.Warn("chat poll tick failed", "chat_id", p.ChatID, "error", err)
				}
			}
		}
	}
}

// Send posts a message and immediately re-fetches, so the sender sees their
// own message without waiting out the interval. On failure the snapshot is
// untouched and the caller keeps the unsent content.
func (p *ChatPoller) Send(ctx context.Context, content string) (dto.ChatMessage, error) {
	msg, err := p.Client.SendMessage(ctx, p.Token, p.ChatID, content)
	if err != nil {
		return dto.ChatMessage{}, err
	}
	if err := p.refresh(ctx); err != nil && p.Logger != nil {
		p.Logger.Warn("post-send refresh failed", "chat_id", p.ChatID, "error", err)
	}
	return msg, nil
}

// Snapshot returns the latest fetched state, if any fetch has succeeded yet.
func (p *ChatPoller) Snapshot() (dto.ChatView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, p.primed
}

func (p *ChatPoller) refresh(ctx context.Context) error {
	view, err := p.Client.Chat(ctx, p.Token, p.ChatID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.snapshot = view
	p.primed = true
	p.mu.Unlock()
	if p.OnUpdate != nil {
		p.OnUpdate(view)
	}
	return nil
}

func (p *ChatPoller) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return 3 * time.Second
}

// InboxPoller refreshes a user's chat list on a slower cadence than an open
// conversation.
type InboxPoller struct {
	Client   *Client
	Token    string
	Interval time.Duration
	OnUpdate func(dto.Inbox)
	Logger   *slog.Logger

	mu       sync.Mutex
	snapshot dto.Inbox
	primed   bool
}

func (p *InboxPoller) Run(ctx context.Context) error {
	if err := p.refresh(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.refresh(ctx); err != nil && p.Logger != nil {
				p.Logger.Warn("inbox poll tick failed", "error", err)
			}
		}
	}
}

func (p *InboxPoller) Snapshot() (dto.Inbox, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, p.primed
}

func (p *InboxPoller) refresh(ctx context.Context) error {
	inbox, err := p.Client.Inbox(ctx, p.Token)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.snapshot = inbox
	p.primed = true
	p.mu.Unlock()
	if p.OnUpdate != nil {
		p.OnUpdate(inbox)
	}
	return nil
}

func (p *InboxPoller) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return 10 * time.Second
}

func chatGone(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}
