package relay

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/bridge-bot/internal/metrics"
	"github.com/xaenox/bridge-bot/internal/models"
	"github.com/xaenox/bridge-bot/internal/normalize"
)

// Authors resolves the profile of a message author.
type Authors interface {
	Author(ctx context.Context, userID string) (models.Author, error)
}

type ReverseConfig struct {
	// SourceChannelID is the Slack channel being relayed.
	SourceChannelID string
	ForwardAvatars  bool
}

// relayedSubtypes are the message subtypes that carry user content.
var relayedSubtypes = map[string]bool{
	"":                 true,
	"thread_broadcast": true,
	"file_share":       true,
	"me_message":       true,
}

var systemNotices = []string{"joined the channel", "left the channel"}

// Reverse relays Slack messages to Discord. Every qualifying message is
// posted independently; there is no threading or approval on this side.
type Reverse struct {
	cfg      ReverseConfig
	resolver normalize.Resolver
	authors  Authors
	dest     Sender
	dialect  *normalize.Dialect
	logger   *zap.Logger
}

func NewReverse(cfg ReverseConfig, resolver normalize.Resolver, authors Authors, dest Sender, logger *zap.Logger) *Reverse {
	return &Reverse{
		cfg:      cfg,
		resolver: resolver,
		authors:  authors,
		dest:     dest,
		dialect:  normalize.Slack,
		logger:   logger,
	}
}

func (r *Reverse) HandleMessage(ctx context.Context, m *models.InboundMessage) models.Outcome {
	outcome := r.handleMessage(ctx, m)
	metrics.RelayOutcomes.WithLabelValues(metrics.SlackToDiscord, string(outcome)).Inc()
	return outcome
}

func isSystemMessage(m *models.InboundMessage) bool {
	if !relayedSubtypes[m.Subtype] {
		return true
	}
	for _, notice := range systemNotices {
		if strings.Contains(m.Text, notice) {
			return true
		}
	}
	return false
}

func (r *Reverse) handleMessage(ctx context.Context, m *models.InboundMessage) models.Outcome {
	logger := loggerFrom(ctx, r.logger).With(
		zap.String("message_ts", m.MessageID),
		zap.String("channel_id", m.Channel.ID))

	if m.Author.Bot || m.Author.ID == "" {
		return models.OutcomeSkipped
	}
	if r.cfg.SourceChannelID != "" && m.Channel.ID != r.cfg.SourceChannelID {
		return models.OutcomeSkipped
	}
	if isSystemMessage(m) {
		logger.Debug("Skipping system message", zap.String("subtype", m.Subtype))
		return models.OutcomeSkipped
	}

	author, err := r.authors.Author(ctx, m.Author.ID)
	if err != nil {
		logger.Error("Failed to resolve Slack author", zap.Error(err), zap.String("user_id", m.Author.ID))
		return models.OutcomeFailed
	}
	if author.Bot {
		return models.OutcomeSkipped
	}

	text := r.dialect.Normalize(ctx, m.Text, r.resolver)
	if text == "" && len(m.Attachments) == 0 {
		return models.OutcomeSkipped
	}

	out := models.OutboundMessage{
		Text:        text,
		Username:    author.DisplayName,
		Attachments: m.Attachments,
	}
	if r.cfg.ForwardAvatars {
		out.AvatarURL = author.AvatarURL
	}

	if _, err := r.dest.Send(ctx, out); err != nil {
		metrics.SendFailures.WithLabelValues(metrics.SlackToDiscord).Inc()
		logger.Error("Failed to send message to Discord", zap.Error(err))
		return models.OutcomeFailed
	}
	return models.OutcomeRoot
}
