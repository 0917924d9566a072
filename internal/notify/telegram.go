package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers alerts via the Telegram Bot API.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiBase: telegramAPI,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts msg with sendMessage, using HTML so addresses need no escaping
// beyond entities.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(msg.Title))
	for _, l := range msg.Lines {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(l))
	}

	return postJSON(ctx, t.client, t.Name(), fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token), map[string]string{
		"chat_id":    t.chatID,
		"text":       b.String(),
		"parse_mode": "HTML",
	})
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
