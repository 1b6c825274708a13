// Package audit persists a trail of access-control mutations. Overrides
// carry a free-text reason and the granting actor; this is the only place
// those fields are surfaced.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event represents a record stored in audit_logs.
type Event struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Logger writes records into audit_logs.
type Logger struct {
	pool *pgxpool.Pool
}

// NewLogger returns a new Logger.
func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

// Record persists the event.
func (l *Logger) Record(ctx context.Context, e Event) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if e.Action == "" || e.Entity == "" || e.EntityID == "" {
		return errors.New("audit event requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ActorID, e.Action, e.Entity, e.EntityID, metaJSON, e.At)
	return err
}
