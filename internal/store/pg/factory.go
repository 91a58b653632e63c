package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/arborlabs/arbor/internal/store"
)

// OpenDB opens a Postgres connection pool via the pgx stdlib driver.
// The schema is managed by the migrate command, not applied here.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by Postgres (managed mode).
func NewStores(dsn string) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	s := &store.Stores{
		Messages:     NewMessageStore(db),
		Summaries:    NewSummaryStore(db),
		Activation:   NewActivationStore(db),
		Settings:     NewSettingsStore(db),
		Interactions: NewInteractionStore(db),
	}
	return s.WithCloser(db.Close), nil
}
