package service

import (
	"context"
	"errors"
	"strings"

	"tclab_control/internal/models"
	"tclab_control/internal/repository"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = repository.ErrRunNotFound

const maxRunListLimit = 500

type HistoryService struct {
	runRepo    repository.RunRepo
	sampleRepo repository.SampleRepo
}

func NewHistoryService(runRepo repository.RunRepo, sampleRepo repository.SampleRepo) *HistoryService {
	return &HistoryService{runRepo: runRepo, sampleRepo: sampleRepo}
}

// ListRuns returns recent runs, newest first. limit <= 0 uses the
// repository default; larger limits are capped.
func (s *HistoryService) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit > maxRunListLimit {
		limit = maxRunListLimit
	}
	return s.runRepo.List(ctx, limit)
}

func (s *HistoryService) GetRun(ctx context.Context, id string) (models.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Run{}, ErrRunNotFound
	}
	return s.runRepo.Get(ctx, id)
}

// Samples returns the samples of an existing run. A run with no samples
// yields an empty, non-nil slice.
func (s *HistoryService) Samples(ctx context.Context, id string) ([]models.Sample, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := s.sampleRepo.List(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Sample{}
	}
	return out, nil
}

// IsNotFound reports whether err means the run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
