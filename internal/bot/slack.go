package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/xaenox/bridge-bot/internal/models"
)

// SlackBot owns the Slack Socket Mode connection and its Web API client.
type SlackBot struct {
	api      *slack.Client
	socket   *socketmode.Client
	dispatch *Dispatcher
	logger   *zap.Logger
}

func NewSlackBot(botToken, appToken string, logger *zap.Logger, options ...slack.Option) *SlackBot {
	options = append([]slack.Option{slack.OptionAppLevelToken(appToken)}, options...)
	api := slack.New(botToken, options...)
	return &SlackBot{
		api:      api,
		socket:   socketmode.New(api),
		dispatch: NewDispatcher("slack", logger),
		logger:   logger.With(zap.String("platform", "slack")),
	}
}

// Sender returns the relay.Sender that posts into Slack.
func (b *SlackBot) Sender() *SlackSender {
	return &SlackSender{api: b.api}
}

// Directory returns the Slack name and profile resolver.
func (b *SlackBot) Directory() *SlackDirectory {
	return &SlackDirectory{api: b.api}
}

// Run reads socket events and feeds messages to h until ctx is cancelled.
func (b *SlackBot) Run(ctx context.Context, h MessageHandler) error {
	handlerCtx := context.WithoutCancel(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.socket.RunContext(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			b.dispatch.Close()
			b.logger.Info("Closing connection")
			return nil
		case err := <-errCh:
			b.dispatch.Close()
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("slack socket mode stopped: %w", err)
			}
			return nil
		case evt, ok := <-b.socket.Events:
			if !ok {
				b.dispatch.Close()
				return nil
			}
			b.handleSocketEvent(handlerCtx, evt, h)
		}
	}
}

// Wait blocks until in-flight handlers complete.
func (b *SlackBot) Wait(ctx context.Context) error {
	return b.dispatch.Wait(ctx)
}

func (b *SlackBot) handleSocketEvent(ctx context.Context, evt socketmode.Event, h MessageHandler) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Info("Connecting to Slack with Socket Mode")
	case socketmode.EventTypeConnectionError:
		b.logger.Warn("Slack connection failed, retrying")
	case socketmode.EventTypeConnected:
		b.logger.Info("Connected to Slack with Socket Mode")
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			b.socket.Ack(*evt.Request)
		}
		payload, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || payload.Type != slackevents.CallbackEvent {
			return
		}
		b.dispatch.Dispatch(ctx, func(ctx context.Context) (models.Event, error) {
			return decodeSlackEvent(payload)
		}, h, nil)
	}
}

// decodeSlackEvent returns (nil, nil) for inner events the bridge ignores.
func decodeSlackEvent(payload slackevents.EventsAPIEvent) (models.Event, error) {
	ev, ok := payload.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return nil, nil
	}
	if ev == nil {
		return nil, errors.New("message event has no payload")
	}
	return convertSlackMessage(ev), nil
}

func convertSlackMessage(ev *slackevents.MessageEvent) *models.InboundMessage {
	channel := models.ChannelInfo{ID: ev.Channel, Kind: models.KindText}
	if ev.ThreadTimeStamp != "" && ev.ThreadTimeStamp != ev.TimeStamp {
		channel.Kind = models.KindThread
		channel.ParentID = ev.ThreadTimeStamp
	}
	return &models.InboundMessage{
		MessageID: ev.TimeStamp,
		Author: models.Author{
			ID:  ev.User,
			Bot: ev.BotID != "" || ev.SubType == "bot_message",
		},
		Channel: channel,
		Text:    ev.Text,
		Subtype: ev.SubType,
	}
}

// SlackSender posts messages under the relayed author's name.
type SlackSender struct {
	api *slack.Client
}

// escapeMrkdwn escapes the characters Slack reserves for its own markup.
func escapeMrkdwn(text string) string {
	// "&" goes first so the entities added below are not escaped again.
	specialChars := []struct{ char, entity string }{
		{"&", "&amp;"},
		{"<", "&lt;"},
		{">", "&gt;"},
	}
	escaped := text
	for _, sc := range specialChars {
		escaped = strings.ReplaceAll(escaped, sc.char, sc.entity)
	}
	return escaped
}

// buildAttachments renders images inline and everything else as a download link.
func buildAttachments(attachments []models.Attachment) []slack.Attachment {
	out := make([]slack.Attachment, 0, len(attachments))
	for _, att := range attachments {
		fallback := fmt.Sprintf("%s - %s", att.Filename, att.URL)
		if att.IsImage() {
			out = append(out, slack.Attachment{
				Fallback: fallback,
				Text:     "Image: " + att.Filename,
				ImageURL: att.URL,
			})
			continue
		}
		out = append(out, slack.Attachment{
			Fallback: fallback,
			Text:     fmt.Sprintf("File: %s\n<%s|Download>", att.Filename, att.URL),
		})
	}
	return out
}

func (s *SlackSender) Send(ctx context.Context, msg models.OutboundMessage) (models.SendResult, error) {
	opts := []slack.MsgOption{
		slack.MsgOptionText(escapeMrkdwn(msg.Text), false),
		slack.MsgOptionUsername(msg.Username),
	}
	if len(msg.Attachments) > 0 {
		opts = append(opts, slack.MsgOptionAttachments(buildAttachments(msg.Attachments)...))
	}
	if msg.AvatarURL != "" {
		opts = append(opts, slack.MsgOptionIconURL(msg.AvatarURL))
	}
	if msg.ThreadRef != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadRef))
	}

	channel, ts, err := s.api.PostMessageContext(ctx, msg.ChannelID, opts...)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to post slack message: %w", err)
	}

	// Replies keep pointing at the thread root, not the reply itself.
	ref := ts
	if msg.ThreadRef != "" {
		ref = msg.ThreadRef
	}
	return models.SendResult{ChannelID: channel, ThreadRef: ref}, nil
}

// SlackDirectory resolves Slack ids to names for the normalizer and
// author profiles for the reverse relay.
type SlackDirectory struct {
	api *slack.Client
}

func slackDisplayName(u *slack.User) string {
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	if u.Profile.RealName != "" {
		return u.Profile.RealName
	}
	return u.Name
}

func (d *SlackDirectory) Author(ctx context.Context, userID string) (models.Author, error) {
	u, err := d.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return models.Author{}, fmt.Errorf("failed to fetch slack user %s: %w", userID, err)
	}
	avatar := u.Profile.Image512
	if avatar == "" {
		avatar = u.Profile.Image192
	}
	return models.Author{
		ID:          u.ID,
		DisplayName: slackDisplayName(u),
		AvatarURL:   avatar,
		Bot:         u.IsBot,
	}, nil
}

func (d *SlackDirectory) UserName(ctx context.Context, id string) (string, error) {
	u, err := d.api.GetUserInfoContext(ctx, id)
	if err != nil {
		return "", err
	}
	return slackDisplayName(u), nil
}

func (d *SlackDirectory) ChannelName(ctx context.Context, id string) (string, error) {
	ch, err := d.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: id})
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

func (d *SlackDirectory) RoleName(ctx context.Context, id string) (string, error) {
	return "", errUnsupported
}

func (d *SlackDirectory) GroupHandle(ctx context.Context, id string) (string, error) {
	groups, err := d.api.GetUserGroupsContext(ctx)
	if err != nil {
		return "", err
	}
	for _, g := range groups {
		if g.ID == id {
			return g.Handle, nil
		}
	}
	return "", fmt.Errorf("user group %s not found", id)
}

func (d *SlackDirectory) CustomEmoji(ctx context.Context) (map[string]bool, error) {
	emoji, err := d.api.GetEmojiContext(ctx)
	if err != nil {
		return nil, err
	}
	registry := make(map[string]bool, len(emoji))
	for name := range emoji {
		registry[name] = true
	}
	return registry, nil
}
