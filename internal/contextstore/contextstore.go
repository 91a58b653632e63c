// Package contextstore maintains the shared per-channel conversation log:
// stream-aware upserts, deduplicated windowed reads, and background
// summarization of older history.
package contextstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arborlabs/arbor/internal/gateway"
	"github.com/arborlabs/arbor/internal/store"
)

const (
	// DefaultWindow is the number of prior turns included when a channel
	// has no override.
	DefaultWindow = 10
	// MaxWindow is the hard ceiling on any window, override or not.
	MaxWindow = 50

	alternationPlaceholder = "..."
)

// Completer is the slice of the gateway the summarizer needs.
type Completer interface {
	Complete(ctx context.Context, provider string, req gateway.Request) (*gateway.Result, error)
}

// Config tunes the context store. Zero values take the package defaults.
type Config struct {
	DefaultWindow int           `json:"default_window"`
	MaxWindow     int           `json:"max_window"`
	CacheTTL      time.Duration `json:"cache_ttl"`

	// Summarization cadence and coverage.
	SummaryCooldown time.Duration `json:"summary_cooldown"`
	SummaryLookback time.Duration `json:"summary_lookback"`
	SummaryChunk    time.Duration `json:"summary_chunk"`
	SummaryProvider string        `json:"summary_provider"`
	SummaryModel    string        `json:"summary_model"`

	// Model id prefixes that require strict user/assistant alternation.
	AlternationModels []string `json:"alternation_models"`
}

func (c *Config) applyDefaults() {
	if c.DefaultWindow <= 0 {
		c.DefaultWindow = DefaultWindow
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = MaxWindow
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 3 * time.Second
	}
	if c.SummaryCooldown <= 0 {
		c.SummaryCooldown = 5 * time.Minute
	}
	if c.SummaryLookback <= 0 {
		c.SummaryLookback = 24 * time.Hour
	}
	if c.SummaryChunk <= 0 {
		c.SummaryChunk = time.Hour
	}
	if c.AlternationModels == nil {
		c.AlternationModels = []string{"claude", "anthropic/"}
	}
}

// Store is the conversation-context engine. One instance serves all
// channels; per-channel summarization is serialized internally.
type Store struct {
	cfg       Config
	messages  store.MessageStore
	summaries store.SummaryStore
	settings  store.SettingsStore
	completer Completer
	cache     *ttlCache

	// channelID -> *summarizerState
	summarizers sync.Map
}

// New builds a Store on the given backends. completer may be nil when
// summarization is disabled (no summary model configured).
func New(cfg Config, st *store.Stores, completer Completer) *Store {
	cfg.applyDefaults()
	return &Store{
		cfg:       cfg,
		messages:  st.Messages,
		summaries: st.Summaries,
		settings:  st.Settings,
		completer: completer,
		cache:     newTTLCache(cfg.CacheTTL),
	}
}

// Turn is one append call. For assistant turns the caller passes the full
// cumulative text on every call while streaming; the stored row tracks the
// latest value.
type Turn struct {
	MessageID   string
	ChannelID   string
	GuildID     string
	UserID      string
	AuthorName  string
	Content     string
	IsAssistant bool
	PersonaName string
	Emotion     string
}

// Append records one turn. Empty content is a no-op, as is a user turn that
// repeats the channel's previous user turn verbatim.
func (s *Store) Append(ctx context.Context, t Turn) error {
	content := strings.TrimSpace(t.Content)
	if content == "" {
		return nil
	}
	if !t.IsAssistant && t.AuthorName != "" {
		content = t.AuthorName + ": " + content
	}

	if !t.IsAssistant {
		last, err := s.messages.LastUserContent(ctx, t.ChannelID)
		if err != nil {
			return err
		}
		if last == content {
			slog.Debug("context: suppressed duplicate user turn",
				"channel_id", t.ChannelID, "message_id", t.MessageID)
			return nil
		}
	}

	err := s.messages.Upsert(ctx, store.Message{
		MessageID:   t.MessageID,
		ChannelID:   t.ChannelID,
		GuildID:     t.GuildID,
		UserID:      t.UserID,
		Content:     content,
		IsAssistant: t.IsAssistant,
		PersonaName: t.PersonaName,
		Emotion:     t.Emotion,
	})
	if err != nil {
		return err
	}

	s.cache.invalidateChannel(t.ChannelID)
	return nil
}

// ReadOptions narrows a Read. Limit 0 means the channel override or the
// default window. ModelID selects alternation normalization.
type ReadOptions struct {
	Limit            int
	ExcludeMessageID string
	ModelID          string
}

// Read returns the channel's recent history in chronological order, shaped
// for a completion request: a leading summary system entry when one exists,
// then the newest rows with duplicate content removed.
func (s *Store) Read(ctx context.Context, channelID string, opts ReadOptions) ([]gateway.Message, error) {
	limit, err := s.resolveLimit(ctx, channelID, opts.Limit)
	if err != nil {
		return nil, err
	}

	key := cacheKey(channelID, limit, opts.ExcludeMessageID)
	rows, ok := s.cache.get(key)
	if !ok {
		rows, err = s.messages.Window(ctx, channelID, limit, opts.ExcludeMessageID)
		if err != nil {
			return nil, err
		}
		s.cache.put(key, rows)
	}

	rows = dedupeEarliest(rows)

	var out []gateway.Message
	latest, err := s.summaries.Latest(ctx, channelID)
	if err != nil {
		// Missing summaries degrade the prompt, they do not fail the read.
		slog.Warn("context: summary lookup failed", "channel_id", channelID, "error", err)
	} else if latest != nil {
		out = append(out, gateway.Message{
			Role:    gateway.RoleSystem,
			Content: "Summary of earlier conversation: " + latest.Text,
		})
	}

	for _, r := range rows {
		role := gateway.RoleUser
		if r.IsAssistant {
			role = gateway.RoleAssistant
		}
		out = append(out, gateway.Message{Role: role, Content: r.Content})
	}

	if s.requiresAlternation(opts.ModelID) {
		out = enforceAlternation(out)
	}
	return out, nil
}

// Clear deletes the channel's stored history and cached windows.
func (s *Store) Clear(ctx context.Context, channelID string) error {
	if err := s.messages.Clear(ctx, channelID, time.Time{}); err != nil {
		return err
	}
	s.cache.invalidateChannel(channelID)
	return nil
}

// ClearBefore deletes the channel's history older than the cutoff, keeping
// recent turns.
func (s *Store) ClearBefore(ctx context.Context, channelID string, cutoff time.Time) error {
	if err := s.messages.Clear(ctx, channelID, cutoff); err != nil {
		return err
	}
	s.cache.invalidateChannel(channelID)
	return nil
}

// SetWindow overrides the channel's context window size.
func (s *Store) SetWindow(ctx context.Context, channelID string, size int) error {
	if size < 1 || size > s.cfg.MaxWindow {
		return fmt.Errorf("context window must be between 1 and %d", s.cfg.MaxWindow)
	}
	if err := s.settings.SetWindow(ctx, channelID, size); err != nil {
		return err
	}
	s.cache.invalidateChannel(channelID)
	return nil
}

// ResetWindow removes the channel's override.
func (s *Store) ResetWindow(ctx context.Context, channelID string) error {
	if err := s.settings.ClearWindow(ctx, channelID); err != nil {
		return err
	}
	s.cache.invalidateChannel(channelID)
	return nil
}

// Window reports the channel's effective context window size.
func (s *Store) Window(ctx context.Context, channelID string) (int, error) {
	return s.resolveLimit(ctx, channelID, 0)
}

func (s *Store) resolveLimit(ctx context.Context, channelID string, explicit int) (int, error) {
	limit := explicit
	if limit <= 0 {
		size, ok, err := s.settings.Window(ctx, channelID)
		if err != nil {
			return 0, err
		}
		if ok {
			limit = size
		} else {
			limit = s.cfg.DefaultWindow
		}
	}
	if limit > s.cfg.MaxWindow {
		limit = s.cfg.MaxWindow
	}
	return limit, nil
}

func (s *Store) requiresAlternation(modelID string) bool {
	if modelID == "" {
		return false
	}
	lower := strings.ToLower(modelID)
	for _, prefix := range s.cfg.AlternationModels {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// dedupeEarliest drops rows whose content already appeared earlier in the
// window.
func dedupeEarliest(rows []store.Message) []store.Message {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		if seen[r.Content] {
			continue
		}
		seen[r.Content] = true
		out = append(out, r)
	}
	return out
}

// enforceAlternation inserts placeholder turns so no two consecutive
// non-system entries share a role. Strict providers reject back-to-back
// user (or assistant) turns.
func enforceAlternation(msgs []gateway.Message) []gateway.Message {
	out := make([]gateway.Message, 0, len(msgs))
	var prevRole string
	for _, m := range msgs {
		if m.Role != gateway.RoleSystem && prevRole == m.Role {
			filler := gateway.RoleAssistant
			if m.Role == gateway.RoleAssistant {
				filler = gateway.RoleUser
			}
			out = append(out, gateway.Message{Role: filler, Content: alternationPlaceholder})
		}
		out = append(out, m)
		if m.Role != gateway.RoleSystem {
			prevRole = m.Role
		}
	}
	return out
}
