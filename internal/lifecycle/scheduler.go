package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/havenos/haven/internal/config"
)

// sweepTimeout bounds a single scheduled run.
const sweepTimeout = 5 * time.Minute

// Scheduler runs a Sweeper on a cron schedule.
type Scheduler struct {
	sweeper *Sweeper
	cron    *cron.Cron
	logger  *slog.Logger

	mu      sync.Mutex
	entry   cron.EntryID
	running bool

	inflightMu sync.Mutex
	inflight   bool
}

func NewScheduler(sweeper *Sweeper, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sweeper: sweeper,
		cron:    cron.New(),
		logger:  logger.With("component", "lifecycle_scheduler"),
	}
}

// Schedule registers the sweep under a five-field cron expression,
// replacing any earlier registration.
func (s *Scheduler) Schedule(expr string) error {
	sched, err := config.ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("invalid lifecycle schedule %q: %w", expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.runOnce() }))
	s.logger.Info("lifecycle sweep scheduled",
		"schedule", expr)
	return nil
}

// Next reports the next scheduled run, or the zero time if none.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("lifecycle scheduler stop timed out")
	}
}

// runOnce runs one sweep unless the previous one is still in flight. It
// reports whether a sweep ran.
func (s *Scheduler) runOnce() bool {
	if !s.tryAcquire() {
		s.logger.Warn("previous lifecycle sweep still running; skipping tick")
		return false
	}
	defer s.release()

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	// Errors are logged by the sweeper.
	_, _ = s.sweeper.Run(ctx)
	return true
}

func (s *Scheduler) tryAcquire() bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *Scheduler) release() {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	s.inflight = false
}
