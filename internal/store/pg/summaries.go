package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arborlabs/arbor/internal/store"
)

// SummaryStore implements store.SummaryStore backed by Postgres.
type SummaryStore struct {
	db *sql.DB
}

func NewSummaryStore(db *sql.DB) *SummaryStore {
	return &SummaryStore{db: db}
}

func (s *SummaryStore) Latest(ctx context.Context, channelID string) (*store.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, start_ts, end_ts, summary, created_at
		FROM chat_summaries WHERE channel_id = $1
		ORDER BY end_ts DESC LIMIT 1`, channelID)
	var out store.Summary
	err := row.Scan(&out.ID, &out.ChannelID, &out.StartTS, &out.EndTS, &out.Text, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &store.PersistenceError{Op: "summaries.latest", Err: err}
	}
	return &out, nil
}

func (s *SummaryStore) Insert(ctx context.Context, sum store.Summary) error {
	if sum.ID == "" {
		sum.ID = uuid.Must(uuid.NewV7()).String()
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_summaries (id, channel_id, start_ts, end_ts, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sum.ID, sum.ChannelID, sum.StartTS, sum.EndTS, sum.Text, sum.CreatedAt)
	if err != nil {
		return &store.PersistenceError{Op: "summaries.insert", Err: err}
	}
	return nil
}

func (s *SummaryStore) List(ctx context.Context, channelID string) ([]store.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, start_ts, end_ts, summary, created_at
		FROM chat_summaries WHERE channel_id = $1
		ORDER BY end_ts ASC`, channelID)
	if err != nil {
		return nil, &store.PersistenceError{Op: "summaries.list", Err: err}
	}
	defer rows.Close()
	var out []store.Summary
	for rows.Next() {
		var sum store.Summary
		if err := rows.Scan(&sum.ID, &sum.ChannelID, &sum.StartTS, &sum.EndTS, &sum.Text, &sum.CreatedAt); err != nil {
			return nil, &store.PersistenceError{Op: "summaries.scan", Err: err}
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.PersistenceError{Op: "summaries.scan", Err: err}
	}
	return out, nil
}
