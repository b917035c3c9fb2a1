package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errLookup = errors.New("lookup failed")

type fakeResolver struct {
	users    map[string]string
	channels map[string]string
	roles    map[string]string
	groups   map[string]string
	emoji    map[string]bool
	emojiErr error

	emojiCalls int
}

func lookup(m map[string]string, id string) (string, error) {
	if name, ok := m[id]; ok {
		return name, nil
	}
	return "", errLookup
}

func (f *fakeResolver) UserName(_ context.Context, id string) (string, error) {
	return lookup(f.users, id)
}

func (f *fakeResolver) ChannelName(_ context.Context, id string) (string, error) {
	return lookup(f.channels, id)
}

func (f *fakeResolver) RoleName(_ context.Context, id string) (string, error) {
	return lookup(f.roles, id)
}

func (f *fakeResolver) GroupHandle(_ context.Context, id string) (string, error) {
	return lookup(f.groups, id)
}

func (f *fakeResolver) CustomEmoji(_ context.Context) (map[string]bool, error) {
	f.emojiCalls++
	return f.emoji, f.emojiErr
}

func newResolver() *fakeResolver {
	return &fakeResolver{
		users:    map[string]string{"111": "Alice", "U01ABC": "bob"},
		channels: map[string]string{"222": "general", "C01XYZ": "random"},
		roles:    map[string]string{"333": "Staff"},
		groups:   map[string]string{"S01DEV": "devs"},
		emoji:    map[string]bool{"partyparrot": true},
	}
}

func TestDiscordNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello world", "hello world"},
		{"user mention", "hi <@111>", "hi @Alice"},
		{"nick mention", "hi <@!111>", "hi @Alice"},
		{"unknown user", "hi <@999>", "hi @unknown"},
		{"channel mention", "see <#222>", "see #general"},
		{"unknown channel", "see <#999>", "see #unknown-channel"},
		{"role mention", "ping <@&333>", "ping @Staff"},
		{"unknown role", "ping <@&999>", "ping @unknown-role"},
		{"custom emoji stripped", "nice <:pepe:123456> work", "nice work"},
		{"animated emoji stripped", "<a:dance:42>", ""},
		{"unicode emoji kept", "nice 🎉 work", "nice 🎉 work"},
		{"broadcast literal kept", "@here look", "@here look"},
		{"whitespace collapsed", "a   b\t\tc", "a b c"},
		{"line breaks kept", "line one  \n\n  line   two", "line one\n\nline two"},
		{
			"mixed",
			"<@&333> <@111> posted in <#222> <:x:1>",
			"@Staff @Alice posted in #general",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Discord.Normalize(context.Background(), tt.in, newResolver())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlackNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"user mention", "hey <@U01ABC>", "hey @bob"},
		{"user mention with label", "hey <@U01ABC|bobby>", "hey @bob"},
		{"unknown user", "hey <@U09NOPE>", "hey @unknown"},
		{"channel mention", "see <#C01XYZ>", "see #random"},
		{"channel label fallback", "see <#C09NOPE|ops>", "see #ops"},
		{"unknown channel", "see <#C09NOPE>", "see #unknown-channel"},
		{"user group", "cc <!subteam^S01DEV>", "cc @devs"},
		{"user group label fallback", "cc <!subteam^S09X|@infra>", "cc @infra"},
		{"unknown user group", "cc <!subteam^S09X>", "cc @unknown-group"},
		{"here", "<!here> standup", "@here standup"},
		{"channel broadcast with label", "<!channel|channel> now", "@channel now"},
		{"bare link", "<https://example.com>", "https://example.com"},
		{"labelled link", "<https://example.com|docs>", "docs (https://example.com)"},
		{"custom emoji stripped", "ship it :partyparrot:", "ship it"},
		{"standard emoji kept", "ship it :tada:", "ship it :tada:"},
		{"entities decoded", "a &lt;b&gt; &amp; c", "a <b> & c"},
		{"line breaks kept", "one\n  two   three", "one\ntwo three"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Slack.Normalize(context.Background(), tt.in, newResolver())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlackEmojiRegistryFailureKeepsShortcodes(t *testing.T) {
	t.Parallel()
	r := newResolver()
	r.emojiErr = errLookup
	r.emoji = nil

	got := Slack.Normalize(context.Background(), "ship it :partyparrot:", r)
	assert.Equal(t, "ship it :partyparrot:", got)
}

func TestSlackEmojiRegistryFetchedOncePerCall(t *testing.T) {
	t.Parallel()
	r := newResolver()

	Slack.Normalize(context.Background(), ":a: :b: :partyparrot: :c:", r)
	assert.Equal(t, 1, r.emojiCalls)

	r.emojiCalls = 0
	Slack.Normalize(context.Background(), "no shortcodes here", r)
	assert.Equal(t, 0, r.emojiCalls)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"<@&333> <@111>   in <#222>\n\nbye <:x:1>",
		"plain   text\nsecond  line",
		"<@999> <#999> <@&999>",
	}
	for _, in := range inputs {
		once := Discord.Normalize(context.Background(), in, newResolver())
		twice := Discord.Normalize(context.Background(), once, newResolver())
		assert.Equal(t, once, twice, "input %q", in)
		assert.NotContains(t, once, "<@")
		assert.NotContains(t, once, "<#")
	}
}

func TestDialectString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "discord", Discord.String())
	assert.Equal(t, "slack", Slack.String())
}
