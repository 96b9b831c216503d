package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tclab_control/internal/models"
	"tclab_control/internal/repository"
)

// EventLogService reads the run log.
type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	ErrInvalidFilter    = errors.New("invalid log filter")
	errInvalidTimeRange = fmt.Errorf("%w: from must be <= to", ErrInvalidFilter)
)

// utcOrZero returns t in UTC, keeping the zero value as "unbounded".
func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// toQuery validates f and turns it into a repository query. Types are
// matched case-insensitively against the known Event* values.
func toQuery(f LogFilter) (repository.EventQuery, error) {
	q := repository.EventQuery{
		From:  utcOrZero(f.From),
		To:    utcOrZero(f.To),
		Type:  strings.ToUpper(strings.TrimSpace(f.Type)),
		RunID: strings.TrimSpace(f.RunID),
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return repository.EventQuery{}, errInvalidTimeRange
	}
	if q.Type != "" {
		if _, ok := knownEventTypes[q.Type]; !ok {
			return repository.EventQuery{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidFilter, q.Type)
		}
	}
	return q, nil
}

// List returns the events matching f, oldest first.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.RunEvent, error) {
	q, err := toQuery(f)
	if err != nil {
		return nil, err
	}
	events, err := s.eventRepo.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
