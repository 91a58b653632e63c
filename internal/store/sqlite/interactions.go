package sqlite

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/arborlabs/arbor/internal/gateway"
	"github.com/arborlabs/arbor/internal/store"
)

// InteractionStore implements gateway.InteractionLogger backed by SQLite.
// Writes are best effort; callers swallow the error after logging it.
type InteractionStore struct {
	db *sql.DB
}

func NewInteractionStore(db *sql.DB) *InteractionStore {
	return &InteractionStore{db: db}
}

func (s *InteractionStore) Append(i gateway.Interaction) error {
	var tags []byte
	if len(i.Tags) > 0 {
		tags, _ = json.Marshal(i.Tags)
	}
	_, err := s.db.Exec(`
		INSERT INTO interaction_logs (id, requested_at, received_at, model, request, response, status_code, tags, user_id, guild_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.Must(uuid.NewV7()).String(), i.RequestedAt, i.ReceivedAt, i.Model,
		string(i.Request), nullString(string(i.Response)), i.StatusCode,
		nullString(string(tags)), nullString(i.UserID), nullString(i.GuildID))
	if err != nil {
		return &store.PersistenceError{Op: "interactions.append", Err: err}
	}
	return nil
}
