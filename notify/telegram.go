package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"idlwatch/internal/store"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers messages through the Telegram bot API.
type TelegramSender struct {
	token   string
	apiBase string
	client  *http.Client
}

// NewTelegramSender builds a sender for the given bot token. A nil
// client gets a default with a 10 second timeout.
func NewTelegramSender(token string, client *http.Client) *TelegramSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TelegramSender{token: token, apiBase: telegramAPIBase, client: client}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Deliver calls sendMessage with the rendered text for the
// subscriber's chat. A non-2xx status or an ok:false body is a
// failure.
func (t *TelegramSender) Deliver(ctx context.Context, sub *store.Subscriber, msg *Message) error {
	if t.token == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    sub.TelegramChatID,
		Text:      msg.Text(),
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: sendMessage: %w", err)
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("telegram: decode response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !out.OK {
		return fmt.Errorf("telegram: sendMessage failed (%d): %s", resp.StatusCode, out.Description)
	}
	return nil
}
