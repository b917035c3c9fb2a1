package bot

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/xaenox/bridge-bot/internal/models"
)

const (
	maxWebhookContent  = 2000
	maxWebhookUsername = 80
	fallbackUsername   = "Slack user"
)

// WebhookSender posts to Discord through an incoming webhook, which lets
// each message carry the original author's name.
type WebhookSender struct {
	session *discordgo.Session
	id      string
	token   string
}

func NewWebhookSender(session *discordgo.Session, webhookURL string) (*WebhookSender, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	return &WebhookSender{session: session, id: id, token: token}, nil
}

// parseWebhookURL extracts id and token from .../api/webhooks/{id}/{token}.
func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("invalid webhook url: no webhook id/token in %q", u.Path)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

// webhookParams builds the execute payload. Attachments become links,
// which Discord unfurls. Mentions are never parsed.
func webhookParams(msg models.OutboundMessage) *discordgo.WebhookParams {
	lines := []string{}
	if msg.Text != "" {
		lines = append(lines, msg.Text)
	}
	for _, att := range msg.Attachments {
		lines = append(lines, fmt.Sprintf("%s: %s", att.Filename, att.URL))
	}

	username := strings.TrimSpace(msg.Username)
	if username == "" {
		username = fallbackUsername
	}

	return &discordgo.WebhookParams{
		Content:   truncate(strings.Join(lines, "\n"), maxWebhookContent),
		Username:  truncate(username, maxWebhookUsername),
		AvatarURL: msg.AvatarURL,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}
}

func (w *WebhookSender) Send(ctx context.Context, msg models.OutboundMessage) (models.SendResult, error) {
	m, err := w.session.WebhookExecute(w.id, w.token, true, webhookParams(msg), discordgo.WithContext(ctx))
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to execute webhook: %w", err)
	}
	return models.SendResult{ChannelID: m.ChannelID, ThreadRef: m.ID}, nil
}
