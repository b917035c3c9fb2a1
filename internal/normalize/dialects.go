package normalize

import (
	"regexp"
	"strings"
)

// Discord markup: <@&role>, <@user>, <@!user>, <#channel>, <:name:id>, <a:name:id>.
// @everyone and @here are already plain text.
var Discord = &Dialect{
	name: "discord",
	rules: []rule{
		{
			re: regexp.MustCompile(`<@&(\d+)>`),
			replace: func(c *call, g []string) string {
				name, err := c.resolver.RoleName(c.ctx, g[1])
				return resolved(name, err, "@", UnknownRole)
			},
		},
		{
			re: regexp.MustCompile(`<@!?(\d+)>`),
			replace: func(c *call, g []string) string {
				name, err := c.resolver.UserName(c.ctx, g[1])
				return resolved(name, err, "@", UnknownUser)
			},
		},
		{
			re: regexp.MustCompile(`<#(\d+)>`),
			replace: func(c *call, g []string) string {
				name, err := c.resolver.ChannelName(c.ctx, g[1])
				return resolved(name, err, "#", UnknownChannel)
			},
		},
		{
			// The <:name:id> form only exists for custom emoji, which Slack cannot render.
			re: regexp.MustCompile(`<a?:\w+:\d+>`),
			replace: func(c *call, g []string) string {
				return ""
			},
		},
	},
}

var slackEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// Slack markup: <@U..>, <#C..|name>, <!subteam^S..|@handle>, <!here>,
// <url|label>, :custom_emoji:, and &amp; &lt; &gt; entities.
var Slack = &Dialect{
	name: "slack",
	rules: []rule{
		{
			re: regexp.MustCompile(`<@([UWB][A-Z0-9]+)(?:\|[^>]*)?>`),
			replace: func(c *call, g []string) string {
				name, err := c.resolver.UserName(c.ctx, g[1])
				return resolved(name, err, "@", UnknownUser)
			},
		},
		{
			re: regexp.MustCompile(`<#([CGD][A-Z0-9]+)(?:\|([^>]*))?>`),
			replace: func(c *call, g []string) string {
				name, err := c.resolver.ChannelName(c.ctx, g[1])
				if (err != nil || name == "") && g[2] != "" {
					return "#" + g[2]
				}
				return resolved(name, err, "#", UnknownChannel)
			},
		},
		{
			re: regexp.MustCompile(`<!subteam\^([A-Z0-9]+)(?:\|([^>]*))?>`),
			replace: func(c *call, g []string) string {
				handle, err := c.resolver.GroupHandle(c.ctx, g[1])
				if (err != nil || handle == "") && g[2] != "" {
					handle, err = g[2], nil
				}
				return resolved(strings.TrimPrefix(handle, "@"), err, "@", UnknownGroup)
			},
		},
		{
			re: regexp.MustCompile(`<!(here|channel|everyone)(?:\|[^>]*)?>`),
			replace: func(c *call, g []string) string {
				return "@" + g[1]
			},
		},
		{
			re: regexp.MustCompile(`<((?:https?|mailto):[^|>]+)(?:\|([^>]+))?>`),
			replace: func(c *call, g []string) string {
				label := strings.TrimSpace(g[2])
				if label == "" || label == g[1] {
					return g[1]
				}
				return label + " (" + g[1] + ")"
			},
		},
		{
			// Standard shortcodes render on Discord; only registered custom ones are dropped.
			re: regexp.MustCompile(`:([a-z0-9_+'-]+):`),
			replace: func(c *call, g []string) string {
				if c.customEmoji()[g[1]] {
					return ""
				}
				return g[0]
			},
		},
	},
	post: slackEntities.Replace,
}
