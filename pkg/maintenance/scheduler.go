package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs every task on a fixed interval.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. An interval of zero or less disables it.
func NewScheduler(runner *Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		s.logInfo("maintenance scheduler disabled")
		return
	}
	s.wg.Add(1)
	go s.loop()
	s.logInfo("maintenance scheduler started", "interval", s.interval)
}

// Stop cancels any in-flight run and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	outcomes := s.runner.RunAll(s.ctx)

	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
	}
	s.logInfo("scheduled maintenance finished", "tasks", len(outcomes), "failed", failed)
}

func (s *Scheduler) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
