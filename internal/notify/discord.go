package notify

import (
	"context"
	"net/http"
	"unicode/utf8"
)

// discordContentLimit is the webhook cap on message content, in characters.
const discordContentLimit = 2000

type discordMessage struct {
	Username        string                 `json:"username,omitempty"`
	Content         string                 `json:"content"`
	AllowedMentions discordAllowedMentions `json:"allowed_mentions"`
}

// discordAllowedMentions with no parse entries stops market questions from
// pinging @everyone or roles.
type discordAllowedMentions struct {
	Parse []string `json:"parse"`
}

// DiscordSender posts notifications to a channel webhook.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		username:   "darkpool",
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

// Send posts "**title**\nmessage", cut to the webhook limit. Discord answers
// 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, discordMessage{
		Username:        d.username,
		Content:         clip("**"+title+"**\n"+message, discordContentLimit),
		AllowedMentions: discordAllowedMentions{Parse: []string{}},
	}, nil)
}

func (d *DiscordSender) Name() string { return "discord" }

// clip shortens s to at most limit runes, marking the cut with an ellipsis.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
