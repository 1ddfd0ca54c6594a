package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"shiftbot/internal/config"
	"shiftbot/internal/pipeline"
)

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler triggers pipeline runs periodically
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SchedulerConfig
	runner    Runner
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// New creates a new scheduler
func New(cfg *config.SchedulerConfig, runner Runner) *Scheduler {
	return &Scheduler{
		config: cfg,
		runner: runner,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if s.config.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	// A fresh cron and context per start so a restart does not inherit a
	// cancelled context or duplicate entries
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))

	schedule := fmt.Sprintf("@every %dm", s.config.IntervalMinutes)
	entryID, err := s.cron.AddFunc(schedule, s.runScheduled)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	ctx := s.cron.Stop()
	s.isRunning = false
	s.mu.Unlock()

	// A job that is still starting needs the lock to read its context
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) runScheduled() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	if err := s.run(ctx); err != nil && !errors.Is(err, pipeline.ErrRunInProgress) {
		logrus.Errorf("Scheduled run failed: %v", err)
	}
}

func (s *Scheduler) run(ctx context.Context) error {
	s.wg.Add(1)
	defer s.wg.Done()

	start := time.Now()
	err := s.runner.Run(ctx)
	logrus.Infof("Pipeline run completed in %v", time.Since(start))
	return err
}

// RunOnce runs the pipeline now (for manual triggering). It returns
// pipeline.ErrRunInProgress when a run is active.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	logrus.Info("Running pipeline once")
	return s.run(ctx)
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last scheduled run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Wait waits for running jobs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// cronLogger routes robfig/cron messages to logrus
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logrus.WithFields(fields(keysAndValues)).Debug(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logrus.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
