package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/partwheel/garsync/internal/models"
)

// State is the scheduler's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSleeping
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Scheduler drives the engine either once or on a fixed interval.
//
// Passes never overlap: the next pass starts interval minus the previous
// pass's duration after the previous pass started, floored at zero. A
// shutdown signal during a pass lets that pass finish; a signal during the
// sleep wakes the loop immediately.
type Scheduler struct {
	engine   SyncEngine
	interval time.Duration
	maxIters int
	logger   *log.Logger

	mu    sync.Mutex
	state State
}

// NewScheduler creates a Scheduler. An interval of zero means single-shot;
// maxIters of zero means unbounded.
func NewScheduler(engine SyncEngine, interval time.Duration, maxIters int, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		maxIters: maxIters,
		logger:   logger,
	}
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run executes passes until the context is cancelled or the iteration cap is
// reached. In single-shot mode the sole pass's result and error are returned
// directly. In continuous mode a fatal pass is logged and the loop proceeds
// to the next tick; Run itself returns the last pass result.
func (s *Scheduler) Run(ctx context.Context, req models.RunRequest, progress chan<- ProgressUpdate) (*models.PassResult, error) {
	defer s.setState(StateStopped)

	if s.interval <= 0 {
		s.setState(StateRunning)
		return s.engine.RunPass(ctx, req, progress)
	}

	var last *models.PassResult
	for iteration := 1; ; iteration++ {
		start := time.Now()
		s.setState(StateRunning)

		// The pass gets a context detached from the shutdown signal so an
		// in-flight pass completes and commits before the loop stops.
		result, err := s.engine.RunPass(context.WithoutCancel(ctx), req, progress)
		if err != nil {
			s.logger.Error("pass failed", "iteration", iteration, "error", err)
		}
		if result != nil {
			last = result
		}

		if s.maxIters > 0 && iteration >= s.maxIters {
			s.logger.Info("iteration cap reached", "iterations", iteration)
			s.setState(StateStopping)
			return last, nil
		}

		if ctx.Err() != nil {
			s.setState(StateStopping)
			return last, nil
		}

		s.setState(StateSleeping)
		if !s.sleep(ctx, s.interval-time.Since(start)) {
			s.setState(StateStopping)
			return last, nil
		}
	}
}

// sleep waits for d or until the context is cancelled. Returns false when
// the wait was interrupted.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
