package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/xaenox/bridge-bot/internal/models"
	"github.com/xaenox/bridge-bot/internal/normalize"
)

// channelTypeGuildMedia is the media channel type, a forum variant.
const channelTypeGuildMedia discordgo.ChannelType = 16

// messageCacheSize is how many recent messages per channel the state keeps,
// so approvals of recent posts skip the REST fetch.
const messageCacheSize = 200

var errUnsupported = errors.New("not supported on this platform")

// DiscordHandler receives both Discord event kinds.
type DiscordHandler interface {
	MessageHandler
	ReactionHandler
}

// DiscordBot owns the Discord gateway connection. It converts gateway
// events into models and resolves names and channels for the relay.
type DiscordBot struct {
	session  *discordgo.Session
	dispatch *Dispatcher
	logger   *zap.Logger
}

func NewDiscordBot(token string, logger *zap.Logger) (*DiscordBot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsAll
	// Events are handled one at a time, in gateway order.
	session.SyncEvents = true
	session.State.MaxMessageCount = messageCacheSize

	return newDiscordBot(session, logger), nil
}

func newDiscordBot(session *discordgo.Session, logger *zap.Logger) *DiscordBot {
	return &DiscordBot{
		session:  session,
		dispatch: NewDispatcher("discord", logger),
		logger:   logger.With(zap.String("platform", "discord")),
	}
}

// Session exposes the underlying session for webhook delivery.
func (b *DiscordBot) Session() *discordgo.Session {
	return b.session
}

// Run connects, feeds events to h until ctx is cancelled, then disconnects.
func (b *DiscordBot) Run(ctx context.Context, h DiscordHandler) error {
	handlerCtx := context.WithoutCancel(ctx)

	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("Logged in", zap.String("user", r.User.String()))
	})
	b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.dispatch.Dispatch(handlerCtx, func(ctx context.Context) (models.Event, error) {
			return b.convertMessage(ctx, m.Message)
		}, h, nil)
	})
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		b.dispatch.Dispatch(handlerCtx, func(ctx context.Context) (models.Event, error) {
			return b.convertReaction(ctx, r)
		}, nil, h)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}

	<-ctx.Done()
	b.dispatch.Close()
	b.logger.Info("Closing connection")
	return b.session.Close()
}

// Wait blocks until in-flight handlers complete.
func (b *DiscordBot) Wait(ctx context.Context) error {
	return b.dispatch.Wait(ctx)
}

func channelKind(t discordgo.ChannelType) models.ChannelKind {
	switch t {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		return models.KindText
	case discordgo.ChannelTypeGuildPublicThread, discordgo.ChannelTypeGuildPrivateThread, discordgo.ChannelTypeGuildNewsThread:
		return models.KindThread
	case discordgo.ChannelTypeGuildForum:
		return models.KindForum
	case channelTypeGuildMedia:
		return models.KindMedia
	default:
		return models.KindOther
	}
}

func channelInfo(ch *discordgo.Channel) models.ChannelInfo {
	info := models.ChannelInfo{
		ID:   ch.ID,
		Name: ch.Name,
		Kind: channelKind(ch.Type),
	}
	// Non-thread channels carry their category as parent; that is not a thread parent.
	if info.Kind == models.KindThread {
		info.ParentID = ch.ParentID
	}
	return info
}

func (b *DiscordBot) channel(ctx context.Context, id string) (*discordgo.Channel, error) {
	if ch, err := b.session.State.Channel(id); err == nil {
		return ch, nil
	}
	ch, err := b.session.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel %s: %w", id, err)
	}
	return ch, nil
}

// channelContext loads the channel and, for threads, its parent.
func (b *DiscordBot) channelContext(ctx context.Context, id string) (*discordgo.Channel, models.ChannelInfo, *models.ChannelInfo, error) {
	ch, err := b.channel(ctx, id)
	if err != nil {
		return nil, models.ChannelInfo{}, nil, err
	}
	info := channelInfo(ch)
	if !info.IsThread() {
		return ch, info, nil, nil
	}
	parent, err := b.channel(ctx, info.ParentID)
	if err != nil {
		return nil, models.ChannelInfo{}, nil, err
	}
	parentInfo := channelInfo(parent)
	return ch, info, &parentInfo, nil
}

func memberDisplayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user == nil && member != nil {
		user = member.User
	}
	if user == nil {
		return ""
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

func (b *DiscordBot) convertMessage(ctx context.Context, m *discordgo.Message) (*models.InboundMessage, error) {
	if m == nil || m.Author == nil {
		return nil, errors.New("message has no author")
	}

	ch, info, parent, err := b.channelContext(ctx, m.ChannelID)
	if err != nil {
		return nil, err
	}
	guildID := m.GuildID
	if guildID == "" {
		guildID = ch.GuildID
	}
	if guildID == "" {
		return nil, models.ErrNoGuild
	}

	bot := m.Author.Bot || m.WebhookID != ""

	// REST and cached messages carry no member; the nickname lives there.
	member := m.Member
	if member == nil && !bot {
		if member, err = b.member(ctx, guildID, m.Author.ID); err != nil {
			b.logger.Debug("Failed to resolve message author", zap.String("user_id", m.Author.ID), zap.Error(err))
			member = nil
		}
	}

	attachments := make([]models.Attachment, 0, len(m.Attachments))
	for _, att := range m.Attachments {
		attachments = append(attachments, models.Attachment{Filename: att.Filename, URL: att.URL})
	}

	return &models.InboundMessage{
		GuildID:   guildID,
		MessageID: m.ID,
		Author: models.Author{
			ID:          m.Author.ID,
			DisplayName: memberDisplayName(member, m.Author),
			AvatarURL:   m.Author.AvatarURL(""),
			Bot:         bot,
		},
		Channel:     info,
		Parent:      parent,
		Text:        m.Content,
		Attachments: attachments,
	}, nil
}

func (b *DiscordBot) convertReaction(ctx context.Context, r *discordgo.MessageReactionAdd) (*models.ReactionEvent, error) {
	if r == nil || r.MessageReaction == nil {
		return nil, errors.New("reaction has no payload")
	}
	if r.GuildID == "" {
		return nil, models.ErrNoGuild
	}

	_, info, parent, err := b.channelContext(ctx, r.ChannelID)
	if err != nil {
		return nil, err
	}

	member := r.Member
	if member == nil {
		if member, err = b.member(ctx, r.GuildID, r.UserID); err != nil {
			return nil, err
		}
	}

	roles := make([]string, 0, len(member.Roles))
	for _, roleID := range member.Roles {
		name, err := b.roleName(ctx, r.GuildID, roleID)
		if err != nil {
			b.logger.Debug("Failed to resolve role", zap.String("role_id", roleID), zap.Error(err))
			continue
		}
		roles = append(roles, name)
	}

	return &models.ReactionEvent{
		GuildID:    r.GuildID,
		MessageID:  r.MessageID,
		Channel:    info,
		Parent:     parent,
		EmojiID:    r.Emoji.ID,
		EmojiName:  r.Emoji.Name,
		ActorID:    r.UserID,
		ActorRoles: roles,
	}, nil
}

func (b *DiscordBot) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if member, err := b.session.State.Member(guildID, userID); err == nil {
		return member, nil
	}
	member, err := b.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch member %s: %w", userID, err)
	}
	return member, nil
}

func (b *DiscordBot) roleName(ctx context.Context, guildID, roleID string) (string, error) {
	if role, err := b.session.State.Role(guildID, roleID); err == nil {
		return role.Name, nil
	}
	roles, err := b.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to fetch roles: %w", err)
	}
	for _, role := range roles {
		if role.ID == roleID {
			return role.Name, nil
		}
	}
	return "", fmt.Errorf("role %s not found", roleID)
}

// FetchMessage loads a message with its channel context.
func (b *DiscordBot) FetchMessage(ctx context.Context, channelID, messageID string) (*models.InboundMessage, error) {
	m, err := b.session.State.Message(channelID, messageID)
	if err != nil {
		if m, err = b.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
			return nil, fmt.Errorf("failed to fetch message %s: %w", messageID, err)
		}
	}
	return b.convertMessage(ctx, m)
}

// Resolver returns a name resolver for one guild.
func (b *DiscordBot) Resolver(guildID string) normalize.Resolver {
	return &discordResolver{bot: b, guildID: guildID}
}

type discordResolver struct {
	bot     *DiscordBot
	guildID string
}

func (r *discordResolver) UserName(ctx context.Context, id string) (string, error) {
	member, err := r.bot.member(ctx, r.guildID, id)
	if err != nil {
		return "", err
	}
	return memberDisplayName(member, member.User), nil
}

func (r *discordResolver) ChannelName(ctx context.Context, id string) (string, error) {
	ch, err := r.bot.channel(ctx, id)
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

func (r *discordResolver) RoleName(ctx context.Context, id string) (string, error) {
	return r.bot.roleName(ctx, r.guildID, id)
}

func (r *discordResolver) GroupHandle(ctx context.Context, id string) (string, error) {
	return "", errUnsupported
}

func (r *discordResolver) CustomEmoji(ctx context.Context) (map[string]bool, error) {
	var emojis []*discordgo.Emoji
	if guild, err := r.bot.session.State.Guild(r.guildID); err == nil {
		emojis = guild.Emojis
	} else if emojis, err = r.bot.session.GuildEmojis(r.guildID, discordgo.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("failed to fetch emojis: %w", err)
	}

	registry := make(map[string]bool, len(emojis))
	for _, e := range emojis {
		registry[e.Name] = true
	}
	return registry, nil
}
