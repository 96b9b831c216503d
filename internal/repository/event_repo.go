package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"tclab_control/internal/models"

	"github.com/google/uuid"
)

const (
	insertEventSQL = `INSERT INTO run_events (id, run_id, occurred_at, type, message, meta) VALUES (?, ?, ?, ?, ?, ?)`
	selectEventSQL = `SELECT id, run_id, occurred_at, type, message, meta FROM run_events`

	// maxEventsPerList caps one List call; a long run logs a phase event per
	// transition plus overruns, so this is weeks of history.
	maxEventsPerList = 5000
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

// normalizeEventType trims and uppercases an event type.
func normalizeEventType(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// marshalMeta encodes event metadata; unencodable metadata is dropped.
func marshalMeta(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// unmarshalMeta decodes stored metadata, keeping the raw text when it is not JSON.
func unmarshalMeta(s sql.NullString) any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return s.String
	}
	return v
}

// Append stores e, assigning an id and a UTC timestamp when they are unset.
func (r *EventSQLite) Append(ctx context.Context, e models.RunEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		nullString(e.RunID),
		e.OccurredAt.UTC(),
		normalizeEventType(e.Type),
		e.Description,
		marshalMeta(e.Metadata),
	)
	return err
}

// where renders q as a WHERE clause and its arguments.
func (q EventQuery) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, q.RunID)
	}
	if !q.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, q.To.UTC())
	}
	if typ := normalizeEventType(q.Type); typ != "" {
		conds = append(conds, "type = ?")
		args = append(args, typ)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns the events matching q, oldest first.
func (r *EventSQLite) List(ctx context.Context, q EventQuery) ([]models.RunEvent, error) {
	where, args := q.where()
	args = append(args, maxEventsPerList)

	rows, err := r.db.QueryContext(ctx, selectEventSQL+where+" ORDER BY occurred_at ASC LIMIT ?", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RunEvent, 0, 64)
	for rows.Next() {
		var (
			ev    models.RunEvent
			runID sql.NullString
			meta  sql.NullString
		)
		if err := rows.Scan(&ev.EventID, &runID, &ev.OccurredAt, &ev.Type, &ev.Description, &meta); err != nil {
			return nil, err
		}
		ev.RunID = runID.String
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.Metadata = unmarshalMeta(meta)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
