package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/arborlabs/arbor/internal/store"
)

// ActivationStore implements store.ActivationStore backed by Postgres.
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
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, channel_id) DO UPDATE SET
			activated_by = EXCLUDED.activated_by,
			activated_at = EXCLUDED.activated_at`,
		a.GuildID, a.ChannelID, a.ActivatedBy, a.ActivatedAt)
	if err != nil {
		return &store.PersistenceError{Op: "activation.activate", Err: err}
	}
	return nil
}

func (s *ActivationStore) Deactivate(ctx context.Context, guildID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_activation WHERE guild_id = $1 AND channel_id = $2`,
		guildID, channelID)
	if err != nil {
		return &store.PersistenceError{Op: "activation.deactivate", Err: err}
	}
	return nil
}

func (s *ActivationStore) IsActive(ctx context.Context, guildID, channelID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM channel_activation WHERE guild_id = $1 AND channel_id = $2`,
		guildID, channelID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &store.PersistenceError{Op: "activation.is_active", Err: err}
	}
	return true, nil
}

// SettingsStore implements store.SettingsStore backed by Postgres.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) SetWindow(ctx context.Context, channelID string, size int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_settings (channel_id, context_window) VALUES ($1, $2)
		ON CONFLICT (channel_id) DO UPDATE SET context_window = EXCLUDED.context_window`,
		channelID, size)
	if err != nil {
		return &store.PersistenceError{Op: "settings.set_window", Err: err}
	}
	return nil
}

func (s *SettingsStore) ClearWindow(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_settings WHERE channel_id = $1`, channelID)
	if err != nil {
		return &store.PersistenceError{Op: "settings.clear_window", Err: err}
	}
	return nil
}

func (s *SettingsStore) Window(ctx context.Context, channelID string) (int, bool, error) {
	var size int
	err := s.db.QueryRowContext(ctx,
		`SELECT context_window FROM channel_settings WHERE channel_id = $1`, channelID).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &store.PersistenceError{Op: "settings.window", Err: err}
	}
	return size, true, nil
}
