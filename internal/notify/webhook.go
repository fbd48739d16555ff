package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alanyoungcy/memebot/internal/crypto"
)

// WebhookSender posts the Message as JSON to an arbitrary endpoint. When a
// secret is set the body is signed with crypto.PayloadSigner so the receiver
// can authenticate it.
type WebhookSender struct {
	url    string
	signer *crypto.PayloadSigner
	client *http.Client
}

// NewWebhookSender creates a WebhookSender. An empty secret disables signing.
func NewWebhookSender(url, secret string) *WebhookSender {
	w := &WebhookSender{url: url, client: newHTTPClient()}
	if secret != "" {
		w.signer = &crypto.PayloadSigner{Secret: secret}
	}
	return w
}

// Send posts msg. The signature covers the exact bytes sent.
func (w *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.signer != nil {
		for k, v := range w.signer.Headers(body) {
			req.Header.Set(k, v)
		}
	}
	if err := do(w.client, req); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// Name returns "webhook".
func (w *WebhookSender) Name() string { return "webhook" }
