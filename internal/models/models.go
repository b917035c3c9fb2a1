package models

import (
	"errors"
	"strings"
	"time"
)

// ThreadMapping ties a Discord thread (or root message) to the Slack thread
// its messages are relayed into.
type ThreadMapping struct {
	ID int64 `json:"id"`
	// SourceChannelID is the parent text channel for threads, the channel itself otherwise.
	SourceChannelID string `json:"source_channel_id"`
	// SourceID is the thread id for thread messages, the message id otherwise.
	SourceID      string    `json:"source_id"`
	DestChannelID string    `json:"dest_channel_id"`
	DestThreadRef string    `json:"dest_thread_ref"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChannelKind is the platform-independent kind of a channel.
type ChannelKind string

const (
	KindText   ChannelKind = "text"
	KindThread ChannelKind = "thread"
	KindForum  ChannelKind = "forum"
	KindMedia  ChannelKind = "media"
	KindOther  ChannelKind = "other"
)

// ChannelInfo describes the channel a message or reaction arrived in.
type ChannelInfo struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Kind     ChannelKind `json:"kind"`
	ParentID string      `json:"parent_id,omitempty"`
}

// IsThread reports whether the channel is a sub-thread of another channel.
func (c ChannelInfo) IsThread() bool {
	return c.Kind == KindThread && c.ParentID != ""
}

// Author is the sender of an inbound message.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Bot         bool   `json:"bot"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// IsImage reports whether the attachment can be rendered inline as an image.
func (a Attachment) IsImage() bool {
	name := strings.ToLower(a.Filename)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// EventKind tags the variants of Event.
type EventKind string

const (
	EventMessageCreated EventKind = "message_created"
	EventReactionAdded  EventKind = "reaction_added"
)

// Event is an inbound platform event after boundary validation.
// It is either *InboundMessage or *ReactionEvent.
type Event interface {
	Kind() EventKind
	Validate() error
}

var (
	ErrNoChannel = errors.New("event has no channel")
	ErrNoGuild   = errors.New("event has no guild context")
	ErrNoMessage = errors.New("event has no message id")
)

// InboundMessage is a message-created event.
type InboundMessage struct {
	GuildID     string       `json:"guild_id,omitempty"`
	MessageID   string       `json:"message_id"`
	Author      Author       `json:"author"`
	Channel     ChannelInfo  `json:"channel"`
	Parent      *ChannelInfo `json:"parent,omitempty"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// Subtype is the platform's system-message marker, empty for ordinary messages.
	Subtype string `json:"subtype,omitempty"`
}

func (m *InboundMessage) Kind() EventKind { return EventMessageCreated }

func (m *InboundMessage) Validate() error {
	if m.Channel.ID == "" {
		return ErrNoChannel
	}
	if m.MessageID == "" {
		return ErrNoMessage
	}
	return nil
}

// ReactionEvent is a reaction-added event.
type ReactionEvent struct {
	GuildID   string       `json:"guild_id"`
	MessageID string       `json:"message_id"`
	Channel   ChannelInfo  `json:"channel"`
	Parent    *ChannelInfo `json:"parent,omitempty"`
	EmojiID   string       `json:"emoji_id,omitempty"`
	EmojiName string       `json:"emoji_name"`
	ActorID   string       `json:"actor_id"`
	// ActorRoles holds role names, not ids.
	ActorRoles []string `json:"actor_roles"`
}

func (r *ReactionEvent) Kind() EventKind { return EventReactionAdded }

func (r *ReactionEvent) Validate() error {
	if r.GuildID == "" {
		return ErrNoGuild
	}
	if r.Channel.ID == "" {
		return ErrNoChannel
	}
	if r.MessageID == "" {
		return ErrNoMessage
	}
	return nil
}

// OutboundMessage is a send request for the destination platform.
type OutboundMessage struct {
	ChannelID   string
	Text        string
	Username    string
	AvatarURL   string
	Attachments []Attachment
	// ThreadRef targets an existing thread; empty posts a new root message.
	ThreadRef string
}

// SendResult identifies where a sent message landed.
type SendResult struct {
	ChannelID string
	ThreadRef string
}

// Outcome is the result of handling one inbound event.
type Outcome string

const (
	OutcomeRoot    Outcome = "forwarded_root"
	OutcomeReply   Outcome = "forwarded_reply"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeMapped  Outcome = "approved"
)
