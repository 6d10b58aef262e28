// Command garagesale-client is a terminal companion for the chat API: it logs
// in, then either follows one conversation or keeps the inbox fresh, printing
// every update as the pollers see it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"garagesale/internal/app/dto"
	"garagesale/internal/client"
	"garagesale/internal/infra/config"
	"garagesale/internal/infra/obs"
)

func main() {
	chatID := flag.String("chat", "", "follow this conversation instead of the inbox")
	itemID := flag.String("item", "", "start a conversation about this item (requires -peer)")
	peerID := flag.String("peer", "", "user to start the conversation with")
	message := flag.String("message", "", "send this message after opening the conversation")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLogger(getenv("APP_ENV", "dev"))

	cfg, err := config.LoadClient()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	api := &client.Client{BaseURL: cfg.BaseURL}
	auth, err := api.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}
	logger.Info("signed in", "user_id", auth.User.ID)

	target := *chatID
	if *itemID != "" && *peerID != "" {
		view, err := api.StartChat(ctx, auth.Token, *itemID, *peerID)
		if err != nil {
			logger.Error("start chat failed", "error", err)
			os.Exit(1)
		}
		target = view.ID
		logger.Info("conversation ready", "chat_id", target)
	}

	if target == "" {
		followInbox(ctx, api, auth.Token, cfg, logger)
		return
	}
	followChat(ctx, api, auth.Token, target, *message, cfg, logger)
}

func followChat(ctx context.Context, api *client.Client, token, chatID, message string, cfg config.ClientConfig, logger *slog.Logger) {
	printed := 0
	poller := &client.ChatPoller{
		Client:   api,
		Token:    token,
		ChatID:   chatID,
		Interval: cfg.ChatPollInterval,
		Logger:   logger,
		OnUpdate: func(view dto.ChatView) {
			if printed > len(view.Messages) {
				printed = len(view.Messages)
			}
			for _, msg := range view.Messages[printed:] {
				fmt.Printf("[%s] %s: %s\n", msg.SentAt.Local().Format("15:04"), msg.SenderID, msg.Content)
			}
			printed = len(view.Messages)
		},
	}
	if message != "" {
		if _, err := poller.Send(ctx, message); err != nil {
			logger.Error("send failed", "error", err)
			os.Exit(1)
		}
	}
	err := poller.Run(ctx)
	switch {
	case errors.Is(err, client.ErrChatGone):
		logger.Info("conversation no longer accessible", "chat_id", chatID)
	case err != nil && !errors.Is(err, context.Canceled):
		logger.Error("chat polling failed", "error", err)
		os.Exit(1)
	}
}

func followInbox(ctx context.Context, api *client.Client, token string, cfg config.ClientConfig, logger *slog.Logger) {
	poller := &client.InboxPoller{
		Client:   api,
		Token:    token,
		Interval: cfg.InboxPollInterval,
		Logger:   logger,
		OnUpdate: func(inbox dto.Inbox) {
			fmt.Printf("--- inbox (%d conversations) ---\n", len(inbox.Items))
			for _, entry := range inbox.Items {
				line := fmt.Sprintf("%s with %s", entry.ChatID, entry.OtherParticipant.Name)
				if entry.LastMessage != nil {
					line += ": " + entry.LastMessage.Content
				}
				if entry.UnreadCount > 0 {
					line += fmt.Sprintf(" (%d unread)", entry.UnreadCount)
				}
				fmt.Println(line)
			}
		},
	}
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("inbox polling failed", "error", err)
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
