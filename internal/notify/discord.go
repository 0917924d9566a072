package notify

import (
	"context"
	"net/http"
	"time"
)

// Embed colours by event.
const (
	colorOK     = 0x2ecc71
	colorFailed = 0xe74c3c
)

// DiscordSender delivers alerts via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Send posts msg as a single embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	color := colorOK
	if msg.Event == EventOrchestrationFailed {
		color = colorFailed
	}
	return postJSON(ctx, d.client, d.Name(), d.webhookURL, map[string]any{
		"embeds": []discordEmbed{{Title: msg.Title, Description: msg.Body(), Color: color}},
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
