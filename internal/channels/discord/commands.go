package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/arborlabs/arbor/internal/router"
)

// handleCommand answers the "!" admin surface. Commands are thin callers
// of router and context store operations.
func (c *Channel) handleCommand(ctx context.Context, m *discordgo.MessageCreate, in router.Inbound) {
	fields := strings.Fields(strings.TrimSpace(m.Content))
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "!"))
	args := fields[1:]

	switch cmd {
	case "help":
		c.send(m.ChannelID, c.helpText())
		return
	case "getcontext":
		size, err := c.context.Window(ctx, m.ChannelID)
		if err != nil {
			c.send(m.ChannelID, "❌ Could not read the context window.")
			return
		}
		c.send(m.ChannelID, fmt.Sprintf("Context window for this channel: %d messages.", size))
		return
	case "uptime":
		c.send(m.ChannelID, fmt.Sprintf("Up for %s.", time.Since(c.startedAt).Round(time.Second)))
		return
	}

	if !c.isAdmin(m) {
		c.send(m.ChannelID, "You need administrator permissions for that command.")
		return
	}

	switch cmd {
	case "activate":
		if err := c.router.Activate(ctx, in); err != nil {
			slog.Error("activate failed", "channel_id", m.ChannelID, "error", err)
			c.send(m.ChannelID, "❌ Could not activate this channel.")
			return
		}
		c.send(m.ChannelID, "✅ This channel is now active. I will respond to every message here.")

	case "deactivate":
		if err := c.router.Deactivate(ctx, in); err != nil {
			slog.Error("deactivate failed", "channel_id", m.ChannelID, "error", err)
			c.send(m.ChannelID, "❌ Could not deactivate this channel.")
			return
		}
		c.send(m.ChannelID, "✅ This channel is now inactive. Mention me when you need me.")

	case "setcontext":
		if len(args) != 1 {
			c.send(m.ChannelID, "Usage: !setcontext <size>")
			return
		}
		size, err := strconv.Atoi(args[0])
		if err != nil {
			c.send(m.ChannelID, "Usage: !setcontext <size>")
			return
		}
		if err := c.context.SetWindow(ctx, m.ChannelID, size); err != nil {
			c.send(m.ChannelID, "❌ "+err.Error())
			return
		}
		c.send(m.ChannelID, fmt.Sprintf("✅ Context window set to %d messages.", size))

	case "resetcontext":
		if err := c.context.ResetWindow(ctx, m.ChannelID); err != nil {
			c.send(m.ChannelID, "❌ Could not reset the context window.")
			return
		}
		c.send(m.ChannelID, "✅ Context window reset to the default.")

	case "clearcontext":
		keep := time.Duration(0)
		if len(args) == 1 {
			hours, err := strconv.Atoi(args[0])
			if err != nil || hours < 0 {
				c.send(m.ChannelID, "Usage: !clearcontext [hours-to-keep]")
				return
			}
			keep = time.Duration(hours) * time.Hour
		}
		var err error
		if keep > 0 {
			err = c.context.ClearBefore(ctx, m.ChannelID, time.Now().UTC().Add(-keep))
		} else {
			err = c.context.Clear(ctx, m.ChannelID)
		}
		if err != nil {
			c.send(m.ChannelID, "❌ Could not clear the context.")
			return
		}
		c.send(m.ChannelID, "✅ Context cleared.")

	case "summarize":
		written, err := c.context.Summarize(ctx, m.ChannelID, true)
		if err != nil {
			slog.Error("forced summarize failed", "channel_id", m.ChannelID, "error", err)
			c.send(m.ChannelID, "❌ Summarization failed.")
			return
		}
		if written == 0 {
			c.send(m.ChannelID, "Nothing to summarize yet. No history chunk has closed.")
			return
		}
		c.send(m.ChannelID, fmt.Sprintf("✅ Summarization complete. %d chunk(s) condensed.", written))

	default:
		// Unknown commands are ignored so other bots' prefixes pass through.
	}
}

func (c *Channel) helpText() string {
	var b strings.Builder
	b.WriteString("**Available handlers**\n")
	for _, h := range c.registry.All() {
		if len(h.TriggerWords) > 0 {
			fmt.Fprintf(&b, "- %s (%s) triggers: %s\n", h.Name, h.Model, strings.Join(h.TriggerWords, ", "))
		} else {
			fmt.Fprintf(&b, "- %s (%s)\n", h.Name, h.Model)
		}
	}
	b.WriteString("\n**Commands**: !activate !deactivate !setcontext <n> !getcontext !resetcontext !clearcontext [hours] !summarize !uptime")
	return b.String()
}

// isAdmin allows configured owners everywhere and guild administrators in
// their guild. DMs are owner-only for admin commands.
func (c *Channel) isAdmin(m *discordgo.MessageCreate) bool {
	for _, id := range c.cfg.OwnerIDs {
		if id == m.Author.ID {
			return true
		}
	}
	if m.GuildID == "" {
		return false
	}
	perms, err := c.session.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}
