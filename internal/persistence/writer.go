// Package persistence journals engine events to Postgres. The journal is
// an append-only audit trail; the engine never reads it back, so a write
// failure delays durability without affecting ledger state.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"stablevault/internal/event"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventWriter writes event batches to vault.events using multi-row INSERT
// with ON CONFLICT DO NOTHING, so replays after a partial failure are
// idempotent on event ID.
type EventWriter struct {
	db *sql.DB
}

func NewEventWriter(db *sql.DB) *EventWriter {
	return &EventWriter{db: db}
}

// EnsureSchema creates the vault schema and events table if absent.
func (w *EventWriter) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS vault`,
		`CREATE TABLE IF NOT EXISTS vault.events (
			id         UUID PRIMARY KEY,
			seq        BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			user_id    UUID NOT NULL,
			asset      TEXT,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS events_seq_idx ON vault.events (seq)`,
		`CREATE INDEX IF NOT EXISTS events_user_idx ON vault.events (user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// WriteBatch inserts the events in a single statement. Empty batches are
// a no-op.
func (w *EventWriter) WriteBatch(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO vault.events
		(id, seq, event_type, user_id, asset, payload, created_at)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		args = append(args,
			e.ID, e.Sequence, string(e.Type), e.User,
			nullable(e.Asset), payload, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (id) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
