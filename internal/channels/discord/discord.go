// Package discord connects the router and handlers to the Discord gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/arborlabs/arbor/internal/channels/typing"
	"github.com/arborlabs/arbor/internal/config"
	"github.com/arborlabs/arbor/internal/contextstore"
	"github.com/arborlabs/arbor/internal/gateway"
	"github.com/arborlabs/arbor/internal/handlers"
	"github.com/arborlabs/arbor/internal/router"
)

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	session   *discordgo.Session
	cfg       config.DiscordConfig
	router    *router.Router
	responder *handlers.Responder
	registry  *handlers.Registry
	context   *contextstore.Store

	botUserID   string // populated on start
	startedAt   time.Time
	typingCtrls sync.Map // channelID string -> *typing.Controller
}

// New creates the Discord channel from config.
func New(cfg config.DiscordConfig, rt *router.Router, resp *handlers.Responder, reg *handlers.Registry, cs *contextstore.Store) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required (set ARBOR_DISCORD_TOKEN)")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		session:   session,
		cfg:       cfg,
		router:    rt,
		responder: resp,
		registry:  reg,
		context:   cs,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.startedAt = time.Now()

	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	return c.session.Close()
}

// SelfID returns the bot's own user id once connected.
func (c *Channel) SelfID() string { return c.botUserID }

// handleMessage processes one incoming Discord message: commands are
// answered inline, everything else goes through the router.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID {
		return
	}

	ctx := context.Background()
	in := c.inbound(m)

	if !m.Author.Bot && strings.HasPrefix(strings.TrimSpace(m.Content), "!") {
		c.handleCommand(ctx, m, in)
		return
	}

	// Every human message lands in the channel log, eligible or not, so
	// later replies see it as context.
	if !m.Author.Bot {
		err := c.context.Append(ctx, contextstore.Turn{
			MessageID:  m.ID,
			ChannelID:  m.ChannelID,
			GuildID:    m.GuildID,
			UserID:     m.Author.ID,
			AuthorName: resolveDisplayName(m),
			Content:    m.Content,
		})
		if err != nil {
			slog.Warn("context append failed", "channel_id", m.ChannelID, "error", err)
		}
	}

	go c.dispatch(ctx, m, in)
}

func (c *Channel) dispatch(ctx context.Context, m *discordgo.MessageCreate, in router.Inbound) {
	decision, err := c.router.Evaluate(ctx, in)
	if err != nil {
		c.sendRoutingError(m.ChannelID, err)
		return
	}
	if decision == nil {
		return
	}

	slog.Info("dispatching message",
		"channel_id", m.ChannelID,
		"handler", decision.Handler.Name,
		"rationale", decision.Rationale)

	ctrl := typing.New(typing.Options{
		MaxDuration:       60 * time.Second,
		KeepaliveInterval: 9 * time.Second,
		StartFn:           func() error { return c.session.ChannelTyping(m.ChannelID) },
	})
	if prev, ok := c.typingCtrls.Load(m.ChannelID); ok {
		prev.(*typing.Controller).Stop()
	}
	c.typingCtrls.Store(m.ChannelID, ctrl)
	ctrl.Start()
	defer func() {
		ctrl.Stop()
		c.typingCtrls.Delete(m.ChannelID)
	}()

	sink := newReplySink(c.session, m.ChannelID)
	err = c.responder.Respond(ctx, decision.Handler, handlers.InboundMessage{
		MessageID:   m.ID,
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		UserID:      m.Author.ID,
		AuthorName:  resolveDisplayName(m),
		ServerName:  c.guildName(m.GuildID),
		ChannelName: c.channelName(m.ChannelID),
		Content:     m.Content,
		ImageURLs:   imageAttachments(m),
	}, sink)
	if err != nil {
		slog.Error("handler response failed",
			"channel_id", m.ChannelID, "handler", decision.Handler.Name, "error", err)
		c.send(m.ChannelID, gateway.UserMessage(err))
		return
	}

	// Fold older history into a summary when enough has accumulated. The
	// store itself enforces the cadence and per-channel exclusivity.
	go func() {
		if _, err := c.context.Summarize(context.Background(), m.ChannelID, false); err != nil {
			slog.Warn("background summarize failed", "channel_id", m.ChannelID, "error", err)
		}
	}()
}

func (c *Channel) inbound(m *discordgo.MessageCreate) router.Inbound {
	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == c.botUserID {
			mentioned = true
			break
		}
	}
	return router.Inbound{
		MessageID:    m.ID,
		ChannelID:    m.ChannelID,
		GuildID:      m.GuildID,
		AuthorID:     m.Author.ID,
		AuthorName:   resolveDisplayName(m),
		AuthorIsBot:  m.Author.Bot,
		IsDM:         m.GuildID == "",
		MentionsSelf: mentioned,
		Content:      m.Content,
		ImageURLs:    imageAttachments(m),
	}
}

func (c *Channel) sendRoutingError(channelID string, err error) {
	var unavailable *router.RoutingTargetUnavailable
	if errors.As(err, &unavailable) {
		c.send(channelID, gateway.MsgUnknownError)
		return
	}
	slog.Error("routing failed", "channel_id", channelID, "error", err)
}

func (c *Channel) send(channelID, content string) {
	if content == "" {
		return
	}
	if _, err := c.session.ChannelMessageSend(channelID, content); err != nil {
		slog.Warn("discord send failed", "channel_id", channelID, "error", err)
	}
}

func (c *Channel) guildName(guildID string) string {
	if guildID == "" {
		return ""
	}
	if g, err := c.session.State.Guild(guildID); err == nil && g != nil {
		return g.Name
	}
	return ""
}

func (c *Channel) channelName(channelID string) string {
	if ch, err := c.session.State.Channel(channelID); err == nil && ch != nil {
		return ch.Name
	}
	return ""
}

// imageAttachments returns attachment URLs that look like images.
func imageAttachments(m *discordgo.MessageCreate) []string {
	var out []string
	for _, att := range m.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			out = append(out, att.URL)
		}
	}
	return out
}

// resolveDisplayName returns the best available display name for a message
// author: server nickname, then global display name, then username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
