// Package normalize rewrites platform markup (mentions, custom emoji,
// entities) into plain text that renders the same on the other platform.
package normalize

import (
	"context"
	"regexp"
	"strings"
)

// Placeholders used when a token cannot be resolved.
const (
	UnknownUser    = "@unknown"
	UnknownChannel = "#unknown-channel"
	UnknownRole    = "@unknown-role"
	UnknownGroup   = "@unknown-group"
)

// Resolver looks up display names for platform ids. Any method may fail;
// failures degrade to the placeholder for that token.
type Resolver interface {
	UserName(ctx context.Context, id string) (string, error)
	ChannelName(ctx context.Context, id string) (string, error)
	RoleName(ctx context.Context, id string) (string, error)
	GroupHandle(ctx context.Context, id string) (string, error)
	// CustomEmoji lists the custom emoji names registered on the platform.
	CustomEmoji(ctx context.Context) (map[string]bool, error)
}

// call holds per-invocation state shared by the rules of one Normalize run.
type call struct {
	ctx      context.Context
	resolver Resolver

	emojiLoaded bool
	emoji       map[string]bool
}

func (c *call) customEmoji() map[string]bool {
	if !c.emojiLoaded {
		c.emojiLoaded = true
		if registry, err := c.resolver.CustomEmoji(c.ctx); err == nil {
			c.emoji = registry
		}
	}
	return c.emoji
}

type rule struct {
	re      *regexp.Regexp
	replace func(c *call, groups []string) string
}

// Dialect is the markup grammar of one source platform.
type Dialect struct {
	name  string
	rules []rule
	post  func(string) string
}

func (d *Dialect) String() string { return d.name }

// Normalize applies every rule of the dialect to text and collapses
// horizontal whitespace on each line. Line breaks are kept as-is.
func (d *Dialect) Normalize(ctx context.Context, text string, r Resolver) string {
	if text == "" {
		return ""
	}

	c := &call{ctx: ctx, resolver: r}
	for _, rl := range d.rules {
		rl := rl
		text = rl.re.ReplaceAllStringFunc(text, func(match string) string {
			return rl.replace(c, rl.re.FindStringSubmatch(match))
		})
	}
	if d.post != nil {
		text = d.post(text)
	}
	return collapseWhitespace(text)
}

func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

// resolved returns prefix+name, or fallback when lookup fails or yields nothing.
func resolved(name string, err error, prefix, fallback string) string {
	name = strings.TrimSpace(name)
	if err != nil || name == "" {
		return fallback
	}
	return prefix + name
}
