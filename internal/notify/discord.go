package notify

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// Discord embed colours per event.
var discordColours = map[string]int{
	"position_opened": 0x2ecc71,
	"position_closed": 0x3498db,
	"cycle_failed":    0xf39c12,
	"fatal":           0xe74c3c,
}

// DiscordSender posts alerts to a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	limiter    *rate.Limiter
}

// NewDiscordSender creates a DiscordSender.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     newHTTPClient(),
		limiter:    rate.NewLimiter(0.5, 5),
	}
}

// Send posts msg as a single embed.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":       msg.Title,
			"description": msg.Body,
			"color":       discordColours[msg.Event],
			"timestamp":   msg.At.Format("2006-01-02T15:04:05.000Z07:00"),
			"footer":      map[string]string{"text": msg.Event},
		}},
	}
	if err := postJSON(ctx, d.client, d.limiter, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns "discord".
func (d *DiscordSender) Name() string { return "discord" }
