package service

import (
	"context"
	"sync"
	"time"

	"tclab_control/internal/models"
	"tclab_control/internal/repository"
)

// memStore implements the run, sample and event repositories in memory.
type memStore struct {
	mu      sync.Mutex
	runs    map[string]models.Run
	order   []string
	samples map[string][]models.Sample
	events  []models.RunEvent
	failAll error
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]models.Run{}, samples: map[string][]models.Sample{}}
}

type memRuns struct{ *memStore }
type memSamples struct{ *memStore }
type memEvents struct{ *memStore }

func (m memRuns) Create(_ context.Context, r models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	m.runs[r.ID] = r
	m.order = append(m.order, r.ID)
	return nil
}

func (m memRuns) Update(_ context.Context, r models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; !ok {
		return repository.ErrRunNotFound
	}
	m.runs[r.ID] = r
	return nil
}

func (m memRuns) Get(_ context.Context, id string) (models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return models.Run{}, repository.ErrRunNotFound
	}
	return r, nil
}

func (m memRuns) List(_ context.Context, limit int) ([]models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Run
	for i := len(m.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.runs[m.order[i]])
	}
	return out, nil
}

func (m memSamples) Append(_ context.Context, runID string, s models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[runID] = append(m.samples[runID], s)
	return nil
}

func (m memSamples) List(_ context.Context, runID string) ([]models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Sample(nil), m.samples[runID]...), nil
}

func (m memEvents) Append(_ context.Context, e models.RunEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m memEvents) List(_ context.Context, q repository.EventQuery) ([]models.RunEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RunEvent
	for _, e := range m.events {
		if (q.Type == "" || e.Type == q.Type) && (q.RunID == "" || e.RunID == q.RunID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// stepClock advances virtual time on every Sleep and never blocks.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

// parkedClock blocks every Sleep until ctx is done.
type parkedClock struct {
	sleeping chan struct{}
	once     sync.Once
}

func newParkedClock() *parkedClock { return &parkedClock{sleeping: make(chan struct{})} }

func (c *parkedClock) Now() time.Time { return time.Now() }

func (c *parkedClock) Sleep(ctx context.Context, _ time.Duration) error {
	c.once.Do(func() { close(c.sleeping) })
	<-ctx.Done()
	return ctx.Err()
}
