package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"garagesale/internal/app/dto"
)

// Client is a thin API client for the chat surface. Every call takes the
// bearer token as an argument; nothing is stored on the client, so concurrent
// callers with different identities can share one instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: server returned %d: %s", e.StatusCode, e.Message)
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (dto.AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var res dto.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &res)
	return res, err
}

func (c *Client) Inbox(ctx context.Context, token string) (dto.Inbox, error) {
	var inbox dto.Inbox
	err := c.do(ctx, http.MethodGet, "/api/chats", token, nil, &inbox)
	return inbox, err
}

func (c *Client) Chat(ctx context.Context, token, chatID string) (dto.ChatView, error) {
	var view dto.ChatView
	err := c.do(ctx, http.MethodGet, "/api/chats/"+chatID, token, nil, &view)
	return view, err
}

func (c *Client) StartChat(ctx context.Context, token, itemID, participantID string) (dto.ChatView, error) {
	body := map[string]string{"item_id": itemID, "participant_id": participantID}
	var view dto.ChatView
	err := c.do(ctx, http.MethodPost, "/api/chats", token, body, &view)
	return view, err
}

func (c *Client) SendMessage(ctx context.Context, token, chatID, content string) (dto.ChatMessage, error) {
	body := map[string]string{"content": content}
	var msg dto.ChatMessage
	err := c.do(ctx, http.MethodPost, "/api/chats/"+chatID+"/messages", token, body, &msg)
	return msg, err
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&payload)
		return &APIError{StatusCode: res.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
