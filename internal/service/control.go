package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"tclab_control/internal/controller"
	"tclab_control/internal/device"
	"tclab_control/internal/logger"
	"tclab_control/internal/models"
	"tclab_control/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrRunInProgress = errors.New("a run is already in progress")
	ErrNoActiveRun   = errors.New("no run in progress")
	ErrInvalidParams = errors.New("invalid run parameters")
)

// bookkeepingTimeout bounds the writes that close a run after the loop has
// returned, including runs ended by cancellation.
const bookkeepingTimeout = 5 * time.Second

// MaxRunDuration is the longest run a caller may request.
const MaxRunDuration = 7 * 24 * time.Hour

type ControlService struct {
	runRepo    repository.RunRepo
	sampleRepo repository.SampleRepo
	eventRepo  repository.EventRepo
	connector  device.Connector
	hub        *Hub
	cfg        Config
	log        *logger.Logger
	loopOpts   []controller.Option

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	current *activeRun
}

// activeRun is the bookkeeping of the run that owns the device. run, phase,
// last, samples and done are guarded by ControlService.mu.
type activeRun struct {
	loop   *controller.Loop
	runCtx context.Context
	cancel context.CancelFunc
	store  context.Context

	run     models.Run
	phase   controller.Phase
	last    *models.Sample
	samples int
	done    bool
}

func NewControlService(
	runRepo repository.RunRepo,
	sampleRepo repository.SampleRepo,
	eventRepo repository.EventRepo,
	connector device.Connector,
	hub *Hub,
	cfg Config,
	log *logger.Logger,
	opts ...controller.Option,
) *ControlService {
	if cfg.SamplePeriod <= 0 {
		cfg.SamplePeriod = controller.DefaultSamplePeriod
	}
	if hub == nil {
		hub = NewHub(cfg.LiveBuffer)
	}
	base, stop := context.WithCancel(context.Background())
	return &ControlService{
		runRepo:    runRepo,
		sampleRepo: sampleRepo,
		eventRepo:  eventRepo,
		connector:  connector,
		hub:        hub,
		cfg:        cfg,
		log:        logger.OrNop(log),
		loopOpts:   opts,
		base:       base,
		stop:       stop,
	}
}

// Execute runs to completion in the caller's goroutine. Cancelling ctx
// interrupts the run; it is still drained and recorded.
func (s *ControlService) Execute(ctx context.Context, p RunParams) (Outcome, error) {
	a, err := s.begin(ctx, ctx, p)
	if err != nil {
		return Outcome{}, err
	}
	return s.execute(a)
}

// StartRun launches a run that outlives ctx; it ends on completion, on a
// fatal error, on Abort or on Close.
func (s *ControlService) StartRun(ctx context.Context, p RunParams) (models.Run, error) {
	a, err := s.begin(ctx, s.base, p)
	if err != nil {
		return models.Run{}, err
	}
	s.wg.Add(1)
	// finalize rewrites a.run under s.mu once the goroutine ends.
	run := a.run
	go func() {
		defer s.wg.Done()
		if _, err := s.execute(a); err != nil {
			s.log.Warnw("background run ended with error", "run_id", run.ID, "err", err)
		}
	}()
	return run, nil
}

func (s *ControlService) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.done {
		return ErrNoActiveRun
	}
	s.current.cancel()
	s.log.Infow("run abort requested", "run_id", s.current.run.ID)
	return nil
}

// Status returns the active run, or the last finished one when idle.
func (s *ControlService) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.current
	if a == nil {
		return RunStatus{}
	}
	run := a.run
	st := RunStatus{
		Active:  !a.done,
		Phase:   a.phase,
		Run:     &run,
		Samples: a.samples,
	}
	if a.last != nil {
		last := *a.last
		st.Last = &last
	}
	return st
}

// Close interrupts any background run and waits for it to be recorded.
func (s *ControlService) Close() {
	s.stop()
	s.wg.Wait()
}

// paramsToConfig validates p and turns it into a controller config.
func (s *ControlService) paramsToConfig(p RunParams) (controller.Config, error) {
	if math.IsNaN(p.DurationSec) || math.IsInf(p.DurationSec, 0) || p.DurationSec <= 0 {
		return controller.Config{}, fmt.Errorf("%w: duration must be > 0", ErrInvalidParams)
	}
	if p.DurationSec > MaxRunDuration.Seconds() {
		return controller.Config{}, fmt.Errorf("%w: duration %.0fs exceeds the %s limit", ErrInvalidParams, p.DurationSec, MaxRunDuration)
	}
	bias := s.cfg.Bias
	if p.Bias != nil {
		bias = *p.Bias
	}
	cfg := controller.Config{
		Setpoint:     p.SetpointC,
		Kp:           p.Kp,
		Ki:           p.Ki,
		Bias:         bias,
		SamplePeriod: s.cfg.SamplePeriod,
		Duration:     time.Duration(p.DurationSec * float64(time.Second)),
	}
	if err := cfg.Validate(); err != nil {
		return controller.Config{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return cfg, nil
}

// begin claims the device, records the run and builds its loop. storeCtx
// carries request values for the writes; runParent decides when the loop is
// interrupted.
func (s *ControlService) begin(storeCtx, runParent context.Context, p RunParams) (*activeRun, error) {
	cfg, err := s.paramsToConfig(p)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && !s.current.done {
		return nil, ErrRunInProgress
	}

	run := models.Run{
		ID:              uuid.NewString(),
		Status:          models.RunStatusRunning,
		StartedAt:       time.Now().UTC(),
		SetpointC:       cfg.Setpoint,
		Kp:              cfg.Kp,
		Ki:              cfg.Ki,
		Bias:            cfg.Bias,
		SamplePeriodSec: cfg.SamplePeriod.Seconds(),
		DurationSec:     cfg.Duration.Seconds(),
	}
	if err := s.runRepo.Create(storeCtx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	runCtx, cancel := context.WithCancel(runParent)
	a := &activeRun{
		runCtx: runCtx,
		cancel: cancel,
		store:  context.WithoutCancel(storeCtx),
		run:    run,
	}
	opts := append([]controller.Option{controller.WithLogger(s.log.With("run_id", run.ID))}, s.loopOpts...)
	opts = append(opts, controller.WithObserver(&runObserver{s: s, a: a, id: run.ID}))
	loop, err := controller.NewLoop(s.connector, cfg, opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	a.loop = loop
	s.current = a

	s.appendEvent(a.store, run.ID, EventRunStart, "run started", map[string]any{
		"setpoint_c": run.SetpointC,
		"kp":         run.Kp,
		"ki":         run.Ki,
		"bias":       run.Bias,
		"duration_s": run.DurationSec,
		"cycles":     cfg.Cycles(),
	})
	return a, nil
}

func (s *ControlService) execute(a *activeRun) (Outcome, error) {
	defer a.cancel()
	res, runErr := a.loop.Run(a.runCtx)
	run := s.finalize(a, res, runErr)
	return Outcome{Run: run, Samples: res.Samples}, runErr
}

// finalize records how the run ended and releases the device claim.
func (s *ControlService) finalize(a *activeRun, res controller.Result, runErr error) models.Run {
	ctx, cancel := context.WithTimeout(a.store, bookkeepingTimeout)
	defer cancel()

	s.mu.Lock()
	run := a.run
	s.mu.Unlock()

	run.FinishedAt = time.Now().UTC()
	run.SampleCount = len(res.Samples)
	if res.HasSteadyState {
		sse := res.SteadyStateError
		run.SteadyStateError = &sse
	}
	run.Status = classify(runErr)
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if err := s.runRepo.Update(ctx, run); err != nil {
		s.log.Errorw("record run outcome failed", "run_id", run.ID, "err", err)
	}

	meta := map[string]any{"status": run.Status, "samples": run.SampleCount}
	if run.SteadyStateError != nil {
		meta["steady_state_error_c"] = *run.SteadyStateError
	}
	if runErr == nil {
		s.appendEvent(ctx, run.ID, EventRunComplete, "run completed", meta)
	} else {
		meta["error"] = run.Error
		s.appendEvent(ctx, run.ID, EventRunAborted, "run aborted", meta)
	}

	s.mu.Lock()
	a.run = run
	a.done = true
	s.mu.Unlock()

	s.hub.Publish(LiveEvent{Type: LiveRun, RunID: run.ID, Phase: controller.PhaseClosed, Run: &run})
	s.log.Infow("run recorded", "run_id", run.ID, "status", run.Status, "samples", run.SampleCount)
	return run
}

// classify maps the loop's error to a run status.
func classify(err error) string {
	switch {
	case err == nil:
		return models.RunStatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.RunStatusInterrupted
	default:
		return models.RunStatusFailed
	}
}

func (s *ControlService) appendEvent(ctx context.Context, runID, typ, desc string, meta map[string]any) {
	err := s.eventRepo.Append(ctx, models.RunEvent{
		EventID:     uuid.NewString(),
		RunID:       runID,
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		s.log.Warnw("append event failed", "run_id", runID, "type", typ, "err", err)
	}
}

// runObserver persists and publishes what the loop reports. It runs inside
// the control cycle, so store errors are logged and never stop the run.
type runObserver struct {
	s  *ControlService
	a  *activeRun
	id string
}

var (
	_ controller.Observer        = (*runObserver)(nil)
	_ controller.OverrunObserver = (*runObserver)(nil)
)

func (o *runObserver) PhaseChanged(p controller.Phase) {
	o.s.mu.Lock()
	o.a.phase = p
	o.s.mu.Unlock()

	o.s.appendEvent(o.a.store, o.id, EventPhase, "phase "+string(p), map[string]any{"phase": p})
	o.s.hub.Publish(LiveEvent{Type: LivePhase, RunID: o.id, Phase: p})
}

func (o *runObserver) SampleRecorded(sm models.Sample, _ controller.State) {
	if err := o.s.sampleRepo.Append(o.a.store, o.id, sm); err != nil {
		o.s.log.Warnw("store sample failed", "run_id", o.id, "index", sm.Index, "err", err)
	}

	o.s.mu.Lock()
	o.a.last = &sm
	o.a.samples++
	o.s.mu.Unlock()

	o.s.hub.Publish(LiveEvent{Type: LiveSample, RunID: o.id, Sample: &sm})
}

func (o *runObserver) CycleOverrun(index int, over time.Duration) {
	o.s.appendEvent(o.a.store, o.id, EventOverrun, fmt.Sprintf("cycle %d overran by %s", index, over), map[string]any{
		"cycle":   index,
		"over_ms": over.Milliseconds(),
	})
}
