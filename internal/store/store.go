package store

import (
	"context"
	"fmt"
	"time"

	"github.com/arborlabs/arbor/internal/gateway"
)

// Message is one stored conversation turn. Assistant rows may be rewritten
// while their reply is still streaming; user rows are written once.
type Message struct {
	MessageID   string    `json:"message_id"` // platform message id, unique per channel
	ChannelID   string    `json:"channel_id"`
	GuildID     string    `json:"guild_id,omitempty"` // empty for DMs
	UserID      string    `json:"user_id"`
	Content     string    `json:"content"`
	IsAssistant bool      `json:"is_assistant"`
	PersonaName string    `json:"persona_name,omitempty"`
	Emotion     string    `json:"emotion,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessageStore persists per-channel conversation logs.
type MessageStore interface {
	// Upsert inserts the row, or replaces content/persona/emotion when a row
	// with the same (channel_id, message_id) exists. CreatedAt is preserved
	// on update so streaming rewrites keep their original position.
	Upsert(ctx context.Context, m Message) error

	// LastUserContent returns the content of the most recent user row in the
	// channel, or "" when the channel has none.
	LastUserContent(ctx context.Context, channelID string) (string, error)

	// Window returns the newest limit rows (excluding excludeID when
	// non-empty) in chronological order.
	Window(ctx context.Context, channelID string, limit int, excludeID string) ([]Message, error)

	// Since returns all rows in the channel strictly after the given time,
	// in chronological order.
	Since(ctx context.Context, channelID string, after time.Time) ([]Message, error)

	// Clear deletes the channel's rows; a zero olderThan deletes all of them.
	Clear(ctx context.Context, channelID string, olderThan time.Time) error
}

// Summary condenses a closed time range of older channel history.
// Ranges never overlap within one channel.
type Summary struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	StartTS   time.Time `json:"start_ts"`
	EndTS     time.Time `json:"end_ts"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SummaryStore persists chat summaries.
type SummaryStore interface {
	// Latest returns the channel's most recent summary, or nil when none.
	Latest(ctx context.Context, channelID string) (*Summary, error)
	Insert(ctx context.Context, s Summary) error
	List(ctx context.Context, channelID string) ([]Summary, error)
}

// Activation marks a channel where the bot answers without being mentioned.
// DMs use guild id "DM".
type Activation struct {
	GuildID     string    `json:"guild_id"`
	ChannelID   string    `json:"channel_id"`
	ActivatedBy string    `json:"activated_by"`
	ActivatedAt time.Time `json:"activated_at"`
}

// ActivationStore persists channel activation state.
type ActivationStore interface {
	Activate(ctx context.Context, a Activation) error
	Deactivate(ctx context.Context, guildID, channelID string) error
	IsActive(ctx context.Context, guildID, channelID string) (bool, error)
}

// SettingsStore persists per-channel context window overrides.
type SettingsStore interface {
	SetWindow(ctx context.Context, channelID string, size int) error
	ClearWindow(ctx context.Context, channelID string) error
	// Window returns (size, true) when an override exists.
	Window(ctx context.Context, channelID string) (int, bool, error)
}

// Stores is the container for all storage backends, built once at startup
// and injected (never a global).
type Stores struct {
	Messages     MessageStore
	Summaries    SummaryStore
	Activation   ActivationStore
	Settings     SettingsStore
	Interactions gateway.InteractionLogger

	closer func() error
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// WithCloser attaches the backend's close hook.
func (s *Stores) WithCloser(fn func() error) *Stores {
	s.closer = fn
	return s
}

// PersistenceError wraps a storage failure. Primary read/write paths
// propagate it; best-effort paths (cache, logging) swallow it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
