package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/arborlabs/arbor/internal/store"
)

// MessageStore implements store.MessageStore backed by Postgres.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) Upsert(ctx context.Context, m store.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, channel_id, guild_id, user_id, content, is_assistant, persona_name, emotion, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (channel_id, message_id) DO UPDATE SET
			content = EXCLUDED.content,
			persona_name = EXCLUDED.persona_name,
			emotion = EXCLUDED.emotion`,
		m.MessageID, m.ChannelID, nullString(m.GuildID), m.UserID, m.Content,
		m.IsAssistant, nullString(m.PersonaName), nullString(m.Emotion), m.CreatedAt)
	if err != nil {
		return &store.PersistenceError{Op: "messages.upsert", Err: err}
	}
	return nil
}

func (s *MessageStore) LastUserContent(ctx context.Context, channelID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM messages
		WHERE channel_id = $1 AND NOT is_assistant
		ORDER BY created_at DESC, id DESC LIMIT 1`, channelID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &store.PersistenceError{Op: "messages.last_user", Err: err}
	}
	return content, nil
}

func (s *MessageStore) Window(ctx context.Context, channelID string, limit int, excludeID string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, channel_id, guild_id, user_id, content, is_assistant, persona_name, emotion, created_at
		FROM (
			SELECT * FROM messages
			WHERE channel_id = $1 AND ($2 = '' OR message_id <> $2)
			ORDER BY created_at DESC, id DESC LIMIT $3
		) newest ORDER BY created_at ASC, id ASC`,
		channelID, excludeID, limit)
	if err != nil {
		return nil, &store.PersistenceError{Op: "messages.window", Err: err}
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) Since(ctx context.Context, channelID string, after time.Time) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, channel_id, guild_id, user_id, content, is_assistant, persona_name, emotion, created_at
		FROM messages
		WHERE channel_id = $1 AND created_at > $2
		ORDER BY created_at ASC, id ASC`, channelID, after)
	if err != nil {
		return nil, &store.PersistenceError{Op: "messages.since", Err: err}
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) Clear(ctx context.Context, channelID string, olderThan time.Time) error {
	var err error
	if olderThan.IsZero() {
		_, err = s.db.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = $1`, channelID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = $1 AND created_at < $2`, channelID, olderThan)
	}
	if err != nil {
		return &store.PersistenceError{Op: "messages.clear", Err: err}
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]store.Message, error) {
	var out []store.Message
	for rows.Next() {
		var m store.Message
		var guild, persona, emotion sql.NullString
		if err := rows.Scan(&m.MessageID, &m.ChannelID, &guild, &m.UserID, &m.Content,
			&m.IsAssistant, &persona, &emotion, &m.CreatedAt); err != nil {
			return nil, &store.PersistenceError{Op: "messages.scan", Err: err}
		}
		m.GuildID = guild.String
		m.PersonaName = persona.String
		m.Emotion = emotion.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.PersistenceError{Op: "messages.scan", Err: err}
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
