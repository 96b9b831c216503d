package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tclab_control/internal/models"
)

var ErrRunNotFound = errors.New("run not found")

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// RunRepo stores one row per controller run.
type RunRepo interface {
	Create(ctx context.Context, r models.Run) error
	Update(ctx context.Context, r models.Run) error
	Get(ctx context.Context, id string) (models.Run, error)
	List(ctx context.Context, limit int) ([]models.Run, error)
}

// SampleRepo stores the time series of a run.
type SampleRepo interface {
	Append(ctx context.Context, runID string, s models.Sample) error
	List(ctx context.Context, runID string) ([]models.Sample, error)
}

// EventQuery selects run log entries. Zero fields do not filter.
type EventQuery struct {
	From  time.Time // inclusive
	To    time.Time // inclusive
	Type  string
	RunID string
}

// EventRepo stores the run log.
type EventRepo interface {
	Append(ctx context.Context, e models.RunEvent) error
	List(ctx context.Context, q EventQuery) ([]models.RunEvent, error)
}

type Repository struct {
	RunRepo    RunRepo
	SampleRepo SampleRepo
	EventRepo  EventRepo
	Auth       Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		RunRepo:    NewRunSQLite(db),
		SampleRepo: NewSampleSQLite(db),
		EventRepo:  NewEventSQLite(db),
		Auth:       NewUserRepository(db),
	}
}
