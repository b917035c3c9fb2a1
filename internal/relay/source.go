package relay

import (
	"fmt"

	"github.com/xaenox/bridge-bot/internal/models"
)

// sourceKey is the mapping key for a message: threads map by
// (parent channel, thread id), channel messages by (channel, message id).
type sourceKey struct {
	channelID string
	sourceID  string
}

func keyFor(channel models.ChannelInfo, messageID string) sourceKey {
	if channel.IsThread() {
		return sourceKey{channelID: channel.ParentID, sourceID: channel.ID}
	}
	return sourceKey{channelID: channel.ID, sourceID: messageID}
}

func (k sourceKey) String() string {
	return fmt.Sprintf("%s/%s", k.channelID, k.sourceID)
}

// titled prefixes body with the bold container title line used for forum posts.
func titled(title, body string) string {
	return "*" + title + "*\n" + body
}
