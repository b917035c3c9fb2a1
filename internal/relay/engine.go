// Package relay decides which inbound chat events are bridged and where
// they land. It knows nothing about platform SDKs; adapters in internal/bot
// feed it validated events and implement its collaborator interfaces.
package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/xaenox/bridge-bot/internal/metrics"
	"github.com/xaenox/bridge-bot/internal/models"
	"github.com/xaenox/bridge-bot/internal/normalize"
	"github.com/xaenox/bridge-bot/internal/storage"
)

// Sender delivers a message to the destination platform.
type Sender interface {
	Send(ctx context.Context, msg models.OutboundMessage) (models.SendResult, error)
}

// Origin is the platform messages are relayed from.
type Origin interface {
	// Resolver returns a name resolver scoped to one guild.
	Resolver(guildID string) normalize.Resolver
	// FetchMessage loads a message with its channel context filled in.
	FetchMessage(ctx context.Context, channelID, messageID string) (*models.InboundMessage, error)
}

type Config struct {
	// BridgeChannelID is the Discord channel being relayed, threads included.
	BridgeChannelID string
	// DestChannelID is the Slack channel new root messages are posted to.
	DestChannelID  string
	ForwardAvatars bool
}

// Engine relays Discord messages into Slack, threading replies through the
// mapping store and holding gated threads until they are approved.
type Engine struct {
	cfg     Config
	gate    *Gate
	store   storage.Storage
	origin  Origin
	dest    Sender
	dialect *normalize.Dialect
	logger  *zap.Logger
}

func NewEngine(cfg Config, gate *Gate, store storage.Storage, origin Origin, dest Sender, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		gate:    gate,
		store:   store,
		origin:  origin,
		dest:    dest,
		dialect: normalize.Discord,
		logger:  logger,
	}
}

// inBridge reports whether channel is the bridge channel or a thread of it.
func (e *Engine) inBridge(channel models.ChannelInfo) bool {
	if channel.ID == e.cfg.BridgeChannelID {
		return true
	}
	return channel.IsThread() && channel.ParentID == e.cfg.BridgeChannelID
}

// HandleMessage relays one message-created event.
func (e *Engine) HandleMessage(ctx context.Context, m *models.InboundMessage) models.Outcome {
	outcome := e.handleMessage(ctx, m)
	metrics.RelayOutcomes.WithLabelValues(metrics.DiscordToSlack, string(outcome)).Inc()
	return outcome
}

func (e *Engine) handleMessage(ctx context.Context, m *models.InboundMessage) models.Outcome {
	logger := loggerFrom(ctx, e.logger).With(
		zap.String("message_id", m.MessageID),
		zap.String("channel_id", m.Channel.ID))

	if m.Author.Bot {
		logger.Debug("Skipping bot message")
		return models.OutcomeSkipped
	}
	if !e.inBridge(m.Channel) {
		return models.OutcomeSkipped
	}

	key := keyFor(m.Channel, m.MessageID)
	gated := e.gate.IsGated(m.Channel, m.Parent)

	mapping, err := e.store.GetMapping(ctx, key.channelID, key.sourceID)
	if err != nil {
		logger.Error("Failed to read thread mapping", zap.Error(err), zap.Stringer("source", key))
		return models.OutcomeFailed
	}
	if gated && mapping == nil {
		logger.Debug("Skipping message in unapproved thread", zap.Stringer("source", key))
		return models.OutcomeSkipped
	}

	text := e.render(ctx, m, gated)
	if text == "" && len(m.Attachments) == 0 {
		logger.Debug("Skipping empty message")
		return models.OutcomeSkipped
	}

	out := e.outbound(m, text)
	if mapping != nil {
		out.ChannelID = mapping.DestChannelID
		out.ThreadRef = mapping.DestThreadRef
		if _, err := e.dest.Send(ctx, out); err != nil {
			e.sendFailed(logger, err)
			return models.OutcomeFailed
		}
		return models.OutcomeReply
	}

	res, err := e.dest.Send(ctx, out)
	if err != nil {
		e.sendFailed(logger, err)
		return models.OutcomeFailed
	}
	if _, err := e.store.SaveMapping(ctx, key.channelID, key.sourceID, res.ChannelID, res.ThreadRef); err != nil {
		logger.Error("Failed to save thread mapping", zap.Error(err), zap.Stringer("source", key))
	}
	return models.OutcomeRoot
}

// HandleReaction approves a gated thread when a privileged member reacts
// with the approval marker: the reacted-to message is posted as a new Slack
// root and the resulting thread is recorded.
func (e *Engine) HandleReaction(ctx context.Context, r *models.ReactionEvent) models.Outcome {
	outcome := e.handleReaction(ctx, r)
	metrics.RelayOutcomes.WithLabelValues(metrics.DiscordToSlack, string(outcome)).Inc()
	if outcome == models.OutcomeMapped {
		metrics.Approvals.Inc()
	}
	return outcome
}

func (e *Engine) handleReaction(ctx context.Context, r *models.ReactionEvent) models.Outcome {
	logger := loggerFrom(ctx, e.logger).With(
		zap.String("message_id", r.MessageID),
		zap.String("channel_id", r.Channel.ID),
		zap.String("actor_id", r.ActorID))

	if !e.gate.IsApprovalMarker(r) || !e.gate.IsPrivileged(r.ActorRoles) {
		return models.OutcomeSkipped
	}
	if !e.inBridge(r.Channel) || !e.gate.IsGated(r.Channel, r.Parent) {
		return models.OutcomeSkipped
	}

	key := keyFor(r.Channel, r.MessageID)
	existing, err := e.store.GetMapping(ctx, key.channelID, key.sourceID)
	if err != nil {
		logger.Error("Failed to read thread mapping", zap.Error(err), zap.Stringer("source", key))
		return models.OutcomeFailed
	}
	if existing != nil {
		logger.Debug("Thread already approved", zap.Stringer("source", key))
		return models.OutcomeSkipped
	}

	m, err := e.origin.FetchMessage(ctx, r.Channel.ID, r.MessageID)
	if err != nil {
		logger.Error("Failed to fetch approved message", zap.Error(err))
		return models.OutcomeFailed
	}
	if m.GuildID == "" {
		m.GuildID = r.GuildID
	}

	res, err := e.dest.Send(ctx, e.outbound(m, e.render(ctx, m, true)))
	if err != nil {
		e.sendFailed(logger, err)
		return models.OutcomeFailed
	}

	mapping, err := e.store.SaveMapping(ctx, key.channelID, key.sourceID, res.ChannelID, res.ThreadRef)
	if err != nil {
		logger.Error("Failed to save thread mapping", zap.Error(err), zap.Stringer("source", key))
		return models.OutcomeFailed
	}

	logger.Info("Thread approved",
		zap.Stringer("source", key),
		zap.String("dest_channel_id", mapping.DestChannelID),
		zap.String("dest_thread_ref", mapping.DestThreadRef))
	return models.OutcomeMapped
}

// render normalizes the message text, adding the forum title line for gated contexts.
func (e *Engine) render(ctx context.Context, m *models.InboundMessage, gated bool) string {
	body := e.dialect.Normalize(ctx, m.Text, e.origin.Resolver(m.GuildID))
	if gated {
		return titled(m.Channel.Name, body)
	}
	return body
}

func (e *Engine) outbound(m *models.InboundMessage, text string) models.OutboundMessage {
	out := models.OutboundMessage{
		ChannelID:   e.cfg.DestChannelID,
		Text:        text,
		Username:    m.Author.DisplayName,
		Attachments: m.Attachments,
	}
	if e.cfg.ForwardAvatars {
		out.AvatarURL = m.Author.AvatarURL
	}
	return out
}

func (e *Engine) sendFailed(logger *zap.Logger, err error) {
	metrics.SendFailures.WithLabelValues(metrics.DiscordToSlack).Inc()
	logger.Error("Failed to send message to Slack", zap.Error(err))
}
