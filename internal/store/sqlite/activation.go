package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/arborlabs/arbor/internal/store"
)

// ActivationStore implements store.ActivationStore backed by SQLite.
type ActivationStore struct {
	db *sql.DB
}

func NewActivationStore(db *sql.DB) *ActivationStore {
	return &ActivationStore{db: db}
}

func (s *ActivationStore) Activate(ctx context.Context, a store.Activation) error {
	if a.ActivatedAt.IsZero() {
		a.ActivatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_activation (guild_id, channel_id, activated_by, activated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, channel_id) DO UPDATE SET
			activated_by = excluded.activated_by,
			activated_at = excluded.activated_at`,
		a.GuildID, a.ChannelID, a.ActivatedBy, a.ActivatedAt)
	if err != nil {
		return &store.PersistenceError{Op: "activation.activate", Err: err}
	}
	return nil
}

func (s *ActivationStore) Deactivate(ctx context.Context, guildID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_activation WHERE guild_id = ? AND channel_id = ?`,
		guildID, channelID)
	if err != nil {
		return &store.PersistenceError{Op: "activation.deactivate", Err: err}
	}
	return nil
}

func (s *ActivationStore) IsActive(ctx context.Context, guildID, channelID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM channel_activation WHERE guild_id = ? AND channel_id = ?`,
		guildID, channelID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &store.PersistenceError{Op: "activation.is_active", Err: err}
	}
	return true, nil
}

// SettingsStore implements store.SettingsStore backed by SQLite.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) SetWindow(ctx context.Context, channelID string, size int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_settings (channel_id, context_window) VALUES (?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET context_window = excluded.context_window`,
		channelID, size)
	if err != nil {
		return &store.PersistenceError{Op: "settings.set_window", Err: err}
	}
	return nil
}

func (s *SettingsStore) ClearWindow(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_settings WHERE channel_id = ?`, channelID)
	if err != nil {
		return &store.PersistenceError{Op: "settings.clear_window", Err: err}
	}
	return nil
}

func (s *SettingsStore) Window(ctx context.Context, channelID string) (int, bool, error) {
	var size int
	err := s.db.QueryRowContext(ctx,
		`SELECT context_window FROM channel_settings WHERE channel_id = ?`, channelID).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &store.PersistenceError{Op: "settings.window", Err: err}
	}
	return size, true, nil
}
