package service

import (
	"context"
	"time"

	"tclab_control/internal/controller"
	"tclab_control/internal/device"
	"tclab_control/internal/logger"
	"tclab_control/internal/models"
	"tclab_control/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Control owns the device: it runs one controller run at a time.
type Control interface {
	// Execute runs synchronously until the run ends or ctx is cancelled.
	Execute(ctx context.Context, p RunParams) (Outcome, error)
	// StartRun launches a run in the background and returns its record.
	StartRun(ctx context.Context, p RunParams) (models.Run, error)
	// Abort interrupts the active run.
	Abort() error
	Status() RunStatus
	// Close interrupts a background run and waits until it is recorded.
	Close()
}

// History exposes finished and running runs.
type History interface {
	ListRuns(ctx context.Context, limit int) ([]models.Run, error)
	GetRun(ctx context.Context, id string) (models.Run, error)
	Samples(ctx context.Context, id string) ([]models.Sample, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.RunEvent, error)
}

// Live fans out run activity to subscribers.
type Live interface {
	Subscribe() (<-chan LiveEvent, func())
}

type Service struct {
	Control
	History
	EventLog
	Live
	Authorization
}

// Config carries the settings the services need from the application config.
type Config struct {
	SamplePeriod time.Duration
	Bias         float64
	SigningKey   string
	TokenTTL     time.Duration
	LiveBuffer   int
}

// NewService wires the repository layer and the device into concrete services.
func NewService(repos *repository.Repository, connector device.Connector, cfg Config, log *logger.Logger, opts ...controller.Option) *Service {
	log = logger.OrNop(log)
	hub := NewHub(cfg.LiveBuffer)
	return &Service{
		Control:       NewControlService(repos.RunRepo, repos.SampleRepo, repos.EventRepo, connector, hub, cfg, log.Named("control"), opts...),
		History:       NewHistoryService(repos.RunRepo, repos.SampleRepo),
		EventLog:      NewEventLogService(repos.EventRepo),
		Live:          hub,
		Authorization: NewAuthService(repos.Auth, cfg.SigningKey, cfg.TokenTTL),
	}
}
