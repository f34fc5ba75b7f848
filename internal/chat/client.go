// Package chat implements the long-poll chat-channel client (§6) and
// the operator-facing message templates.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Update is one inbound chat message.
type Update struct {
	UpdateID int64
	ChatID   string
	Text     string
}

// Chat is the narrow contract the rest of the pipeline depends on
// (§9 "cycle breaks").
type Chat interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error)
}

const (
	// ParseModeHTML is the chat channel's rich-text message format.
	ParseModeHTML = "HTML"
	longPollHTTPTimeout = 35 * time.Second // HTTP timeout for every bot-API call, including the server-side wait a GetUpdates caller asks for
)

// Client is a bot-API long-poll client grounded on the same
// retryablehttp transport policy as internal/broker.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	log     zerolog.Logger
}

// NewClient builds a Client against a bot-API-compatible base URL
// (already including the bot token path segment).
func NewClient(baseURL string, log zerolog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = longPollHTTPTimeout
	rc.Logger = nil
	return &Client{baseURL: baseURL, http: rc, log: log.With().Str("component", "chat").Logger()}
}

// SendMessage implements sendMessage(chat_id, text, parse_mode).
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) error {
	form := url.Values{
		"chat_id":    {chatID},
		"text":       {text},
		"parse_mode": {parseMode},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendMessage", []byte(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendMessage returned status %d", resp.StatusCode)
	}
	return nil
}

// GetUpdates implements getUpdates(offset, timeout); the server-side
// wait is kept slightly shorter than the client read timeout (§5).
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	url := fmt.Sprintf("%s/getUpdates?offset=%d&timeout=%d", c.baseURL, offset, timeoutSeconds)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build getUpdates request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Result []struct {
			UpdateID int64 `json:"update_id"`
			Message  struct {
				Chat struct {
					ID int64 `json:"id"`
				} `json:"chat"`
				Text string `json:"text"`
			} `json:"message"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}

	updates := make([]Update, 0, len(payload.Result))
	for _, r := range payload.Result {
		updates = append(updates, Update{
			UpdateID: r.UpdateID,
			ChatID:   fmt.Sprintf("%d", r.Message.Chat.ID),
			Text:     r.Message.Text,
		})
	}
	return updates, nil
}
