package repository

import (
	"context"
	"database/sql"

	"tclab_control/internal/models"
)

const (
	insertSampleSQL  = `INSERT INTO run_samples (run_id, idx, t_s, measured_c, setpoint_c, output_pct) VALUES (?, ?, ?, ?, ?, ?)`
	selectSamplesSQL = `SELECT idx, t_s, measured_c, setpoint_c, output_pct FROM run_samples WHERE run_id=? ORDER BY idx ASC`
)

type SampleSQLite struct {
	db *sql.DB
}

func NewSampleSQLite(db *sql.DB) *SampleSQLite { return &SampleSQLite{db: db} }

// Append stores one sample; (run_id, idx) is unique.
func (r *SampleSQLite) Append(ctx context.Context, runID string, s models.Sample) error {
	_, err := r.db.ExecContext(ctx, insertSampleSQL, runID, s.Index, s.T, s.Measured, s.Setpoint, s.Output)
	return err
}

// List returns the samples of a run in emission order.
func (r *SampleSQLite) List(ctx context.Context, runID string) ([]models.Sample, error) {
	rows, err := r.db.QueryContext(ctx, selectSamplesSQL, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Sample
	for rows.Next() {
		var s models.Sample
		if err := rows.Scan(&s.Index, &s.T, &s.Measured, &s.Setpoint, &s.Output); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
