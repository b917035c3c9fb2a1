package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xaenox/bridge-bot/internal/models"
)

func TestGateIsGated(t *testing.T) {
	t.Parallel()
	gate := NewGate("✅", []string{"Staff"}, nil)
	media := models.ChannelInfo{ID: "400", Kind: models.KindMedia}
	mediaThread := models.ChannelInfo{ID: "401", Kind: models.KindThread, ParentID: "400"}

	tests := []struct {
		name    string
		channel models.ChannelInfo
		parent  *models.ChannelInfo
		want    bool
	}{
		{"text channel", textChannel, nil, false},
		{"thread in text channel", textThread, &textChannel, false},
		{"forum container", forum, nil, true},
		{"forum thread", forumThread, &forum, true},
		{"forum thread without parent info", forumThread, nil, false},
		{"media thread with default predicate", mediaThread, &media, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, gate.IsGated(tt.channel, tt.parent))
		})
	}
}

func TestGateCustomPredicate(t *testing.T) {
	t.Parallel()
	gate := NewGate("✅", nil, KindsPredicate(models.KindForum, models.KindMedia))
	media := models.ChannelInfo{ID: "400", Kind: models.KindMedia}
	mediaThread := models.ChannelInfo{ID: "401", Kind: models.KindThread, ParentID: "400"}

	assert.True(t, gate.IsGated(mediaThread, &media))
	assert.False(t, gate.IsGated(textThread, &textChannel))
}

func TestGateApprovalMarker(t *testing.T) {
	t.Parallel()
	unicode := NewGate("✅", nil, nil)
	assert.True(t, unicode.IsApprovalMarker(&models.ReactionEvent{EmojiName: "✅"}))
	assert.False(t, unicode.IsApprovalMarker(&models.ReactionEvent{EmojiName: "❌"}))

	custom := NewGate("987654", nil, nil)
	assert.True(t, custom.IsApprovalMarker(&models.ReactionEvent{EmojiName: "approved", EmojiID: "987654"}))
	assert.False(t, custom.IsApprovalMarker(&models.ReactionEvent{EmojiName: "approved", EmojiID: "1"}))

	disabled := NewGate("", nil, nil)
	assert.False(t, disabled.IsApprovalMarker(&models.ReactionEvent{EmojiName: ""}))
}

func TestGateIsPrivileged(t *testing.T) {
	t.Parallel()
	gate := NewGate("✅", []string{" Staff ", "Moderator"}, nil)

	assert.True(t, gate.IsPrivileged([]string{"Member", "Staff"}))
	assert.True(t, gate.IsPrivileged([]string{"Moderator"}))
	assert.False(t, gate.IsPrivileged([]string{"moderator"}))
	assert.False(t, gate.IsPrivileged([]string{"STAFF"}))
	assert.False(t, gate.IsPrivileged([]string{"Member"}))
	assert.False(t, gate.IsPrivileged(nil))
}

func TestKeyFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, sourceKey{channelID: forumChannelID, sourceID: forumThreadID}, keyFor(forumThread, "999"))
	assert.Equal(t, sourceKey{channelID: textChannelID, sourceID: "999"}, keyFor(textChannel, "999"))
	assert.Equal(t, "100/999", keyFor(textChannel, "999").String())
}
