package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tclab_control/internal/models"
)

// DefaultRunListLimit bounds List when the caller passes no limit.
const DefaultRunListLimit = 50

const (
	insertRunSQL = `
		INSERT INTO runs (id, status, started_at, finished_at, setpoint_c, kp, ki, bias,
			sample_period_s, duration_s, sample_count, steady_state_error_c, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	updateRunSQL = `
		UPDATE runs SET status=?, finished_at=?, sample_count=?, steady_state_error_c=?, error=?
		WHERE id=?
	`

	selectRunColumns = `
		SELECT id, status, started_at, finished_at, setpoint_c, kp, ki, bias,
			sample_period_s, duration_s, sample_count, steady_state_error_c, error
		FROM runs
	`

	selectRunSQL  = selectRunColumns + ` WHERE id=?`
	selectRunsSQL = selectRunColumns + ` ORDER BY started_at DESC LIMIT ?`
)

type RunSQLite struct {
	db *sql.DB
}

func NewRunSQLite(db *sql.DB) *RunSQLite { return &RunSQLite{db: db} }

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Create inserts a new run row. StartedAt defaults to now.
func (r *RunSQLite) Create(ctx context.Context, run models.Run) error {
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, insertRunSQL,
		run.ID,
		run.Status,
		started.UTC(),
		nullTime(run.FinishedAt),
		run.SetpointC,
		run.Kp,
		run.Ki,
		run.Bias,
		run.SamplePeriodSec,
		run.DurationSec,
		run.SampleCount,
		nullFloat(run.SteadyStateError),
		nullString(run.Error),
	)
	return err
}

// Update writes the outcome columns of an existing run.
func (r *RunSQLite) Update(ctx context.Context, run models.Run) error {
	res, err := r.db.ExecContext(ctx, updateRunSQL,
		run.Status,
		nullTime(run.FinishedAt),
		run.SampleCount,
		nullFloat(run.SteadyStateError),
		nullString(run.Error),
		run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.Run, error) {
	var (
		run      models.Run
		finished sql.NullTime
		sse      sql.NullFloat64
		msg      sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&run.Status,
		&run.StartedAt,
		&finished,
		&run.SetpointC,
		&run.Kp,
		&run.Ki,
		&run.Bias,
		&run.SamplePeriodSec,
		&run.DurationSec,
		&run.SampleCount,
		&sse,
		&msg,
	); err != nil {
		return models.Run{}, err
	}
	run.StartedAt = run.StartedAt.UTC()
	if finished.Valid {
		run.FinishedAt = finished.Time.UTC()
	}
	if sse.Valid {
		v := sse.Float64
		run.SteadyStateError = &v
	}
	run.Error = msg.String
	return run, nil
}

func (r *RunSQLite) Get(ctx context.Context, id string) (models.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, selectRunSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Run{}, ErrRunNotFound
	}
	return run, err
}

// List returns the most recent runs first.
func (r *RunSQLite) List(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}
	rows, err := r.db.QueryContext(ctx, selectRunsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
