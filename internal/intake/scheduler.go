package intake

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/arrivals-intake/constants"
	"github.com/joseph-ayodele/arrivals-intake/internal/common"
)

// Status is a snapshot of the scheduler for the status endpoint.
type Status struct {
	RunID      string             `json:"run_id,omitempty"`
	State      constants.RunState `json:"state"`
	StartedAt  time.Time          `json:"started_at,omitempty"`
	Cycles     int                `json:"cycles"`
	LastError  string             `json:"last_error,omitempty"`
	LastReport *CycleReport       `json:"last_report,omitempty"`
}

// Scheduler runs the poll loop: bootstrap, authenticate, then a cycle every
// interval until the context ends or authentication fails. At most one run is
// active at a time.
type Scheduler struct {
	pipeline *Pipeline
	seen     DedupSet
	interval time.Duration
	reauth   bool
	logger   *slog.Logger

	onState func(constants.RunState)
	onCycle func(CycleReport, error)

	mu      sync.Mutex
	running bool
	status  Status
}

type SchedulerOption func(*Scheduler)

func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithReauthEachCycle fetches a fresh token before every cycle instead of once per run.
func WithReauthEachCycle(on bool) SchedulerOption {
	return func(s *Scheduler) { s.reauth = on }
}

// WithStateListener is called on every run state change.
func WithStateListener(fn func(constants.RunState)) SchedulerOption {
	return func(s *Scheduler) { s.onState = fn }
}

// WithCycleListener is called after every cycle, including failed polls.
func WithCycleListener(fn func(CycleReport, error)) SchedulerOption {
	return func(s *Scheduler) { s.onCycle = fn }
}

func NewScheduler(p *Pipeline, seen DedupSet, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if seen == nil {
		seen = NewMemorySet()
	}
	s := &Scheduler{
		pipeline: p,
		seen:     seen,
		interval: 60 * time.Second,
		logger:   logger,
		status:   Status{State: constants.RunStateIdle},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run blocks until the run ends. It returns nil when ctx is cancelled, the
// bootstrap or auth error otherwise, and common.ErrRunActive if a run is
// already in progress.
func (s *Scheduler) Run(ctx context.Context) error {
	runID, err := s.begin(common.RunIDFromContext(ctx))
	if err != nil {
		return err
	}
	return s.run(common.WithRunID(ctx, runID), runID)
}

// Start launches a run in the background and returns its ID.
func (s *Scheduler) Start(ctx context.Context) (string, error) {
	runID, err := s.begin("")
	if err != nil {
		return "", err
	}
	go func() { _ = s.run(common.WithRunID(ctx, runID), runID) }()
	return runID, nil
}

// Status returns a copy of the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.LastReport != nil {
		r := *st.LastReport
		st.LastReport = &r
	}
	return st
}

// Running reports whether a run is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) begin(runID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return "", common.NewAppError("RUN_ACTIVE", "run "+s.status.RunID+" in progress", common.ErrRunActive)
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	s.running = true
	s.status = Status{RunID: runID, State: constants.RunStateRunning, StartedAt: time.Now()}
	s.notify(constants.RunStateRunning)
	return runID, nil
}

func (s *Scheduler) finish(state constants.RunState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.status.State = state
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.notify(state)
}

// notify must be called with mu held.
func (s *Scheduler) notify(state constants.RunState) {
	if s.onState != nil {
		s.onState(state)
	}
}

func (s *Scheduler) run(ctx context.Context, runID string) error {
	logger := s.logger.With("run_id", runID)
	logger.Info("run started", "interval", s.interval.String(), "reauth_each_cycle", s.reauth)

	if err := s.pipeline.Bootstrap(ctx); err != nil {
		if ctx.Err() != nil {
			return s.stop(logger)
		}
		logger.Error("run aborted: bootstrap failed", "error", err)
		s.finish(constants.RunStateFailed, err)
		return err
	}

	token, err := s.pipeline.Authenticate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.stop(logger)
		}
		logger.Error("run aborted: authentication failed", "error", err)
		s.finish(constants.RunStateAuthFailed, err)
		return err
	}

	for cycle := 0; ; cycle++ {
		if cycle > 0 && s.reauth {
			if token, err = s.pipeline.Authenticate(ctx); err != nil {
				if ctx.Err() != nil {
					return s.stop(logger)
				}
				logger.Error("run aborted: re-authentication failed", "error", err)
				s.finish(constants.RunStateAuthFailed, err)
				return err
			}
		}

		report, err := s.pipeline.RunCycle(ctx, State{Token: token, Seen: s.seen})
		s.record(report, err)
		if err != nil && ctx.Err() == nil {
			logger.Warn("cycle failed; retrying next interval", "cycle_id", report.CycleID, "error", err)
		}
		if s.onCycle != nil {
			s.onCycle(report, err)
		}

		if ctx.Err() != nil {
			return s.stop(logger)
		}
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return s.stop(logger)
		case <-t.C:
		}
	}
}

func (s *Scheduler) stop(logger *slog.Logger) error {
	logger.Info("run stopped")
	s.finish(constants.RunStateStopped, nil)
	return nil
}

func (s *Scheduler) record(report CycleReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Cycles++
	s.status.LastReport = &report
	s.status.LastError = ""
	if err != nil && !errors.Is(err, context.Canceled) {
		s.status.LastError = err.Error()
	}
}

// RunOnce bootstraps, authenticates and runs a single cycle without a Scheduler.
func RunOnce(ctx context.Context, p *Pipeline, seen DedupSet) (CycleReport, error) {
	if err := p.Bootstrap(ctx); err != nil {
		return CycleReport{}, err
	}
	token, err := p.Authenticate(ctx)
	if err != nil {
		return CycleReport{}, err
	}
	if seen == nil {
		seen = NewMemorySet()
	}
	return p.RunCycle(ctx, State{Token: token, Seen: seen})
}
