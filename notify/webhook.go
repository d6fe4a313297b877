package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"idlwatch/internal/safeurl"
	"idlwatch/internal/store"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when
// the subscriber has a shared secret, GitHub style.
const SignatureHeader = "X-Idlwatch-Signature-256"

// WebhookSender POSTs messages to subscriber webhook URLs.
type WebhookSender struct {
	client *http.Client

	// allowPrivate skips the SSRF guard. Test hook only.
	allowPrivate bool
}

// NewWebhookSender builds a webhook sender. A nil client gets a default
// with a 10 second timeout.
func NewWebhookSender(client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSender{client: client}
}

// Deliver POSTs the message as JSON. Any 2xx response counts as
// delivered.
func (w *WebhookSender) Deliver(ctx context.Context, sub *store.Subscriber, msg *Message) error {
	if !w.allowPrivate {
		if err := safeurl.Validate(sub.WebhookURL); err != nil {
			return fmt.Errorf("webhook url: %w", err)
		}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sub.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(body, sub.WebhookSecret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature (with or without the
// "sha256=" prefix) against the body. Receivers can use this to
// authenticate inbound deliveries.
func VerifySignature(body []byte, signature, secret string) bool {
	const prefix = "sha256="
	if len(signature) > len(prefix) && signature[:len(prefix)] == prefix {
		signature = signature[len(prefix):]
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), decoded)
}
