package relay

import (
	"strings"

	"github.com/xaenox/bridge-bot/internal/models"
)

// GatedPredicate reports whether channels of a kind need moderator approval.
type GatedPredicate func(kind models.ChannelKind) bool

// KindsPredicate gates exactly the listed kinds.
func KindsPredicate(kinds ...models.ChannelKind) GatedPredicate {
	set := make(map[models.ChannelKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(kind models.ChannelKind) bool {
		return set[kind]
	}
}

// Gate holds the moderation rules for gated contexts. A gated source thread
// is unapproved until a mapping exists for it.
type Gate struct {
	approvalEmoji string
	privileged    map[string]bool
	gated         GatedPredicate
}

func NewGate(approvalEmoji string, privilegedRoles []string, gated GatedPredicate) *Gate {
	privileged := make(map[string]bool, len(privilegedRoles))
	for _, role := range privilegedRoles {
		privileged[strings.TrimSpace(role)] = true
	}
	if gated == nil {
		gated = KindsPredicate(models.KindForum)
	}
	return &Gate{
		approvalEmoji: approvalEmoji,
		privileged:    privileged,
		gated:         gated,
	}
}

// IsGated reports whether a message in channel needs approval before relay:
// either the channel itself is a gated container or it is a thread under one.
func (g *Gate) IsGated(channel models.ChannelInfo, parent *models.ChannelInfo) bool {
	if channel.IsThread() && parent != nil && g.gated(parent.Kind) {
		return true
	}
	return g.gated(channel.Kind)
}

// IsApprovalMarker matches the configured emoji by name or custom emoji id.
func (g *Gate) IsApprovalMarker(r *models.ReactionEvent) bool {
	if g.approvalEmoji == "" {
		return false
	}
	return r.EmojiName == g.approvalEmoji || (r.EmojiID != "" && r.EmojiID == g.approvalEmoji)
}

// IsPrivileged reports whether any of roles is a privileged role name.
// Names match exactly, as Discord shows them.
func (g *Gate) IsPrivileged(roles []string) bool {
	for _, role := range roles {
		if g.privileged[role] {
			return true
		}
	}
	return false
}
