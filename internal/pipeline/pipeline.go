// Package pipeline sequences intake, parse and publish for one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"shiftbot/internal/metrics"
	"shiftbot/internal/model"
	"shiftbot/internal/runlock"
	"shiftbot/internal/runlog"
)

// ErrRunInProgress is returned when another run holds the run lock
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Stage is one step of a run. It reports its counters even when it fails.
type Stage interface {
	Run(ctx context.Context, log logrus.FieldLogger) (model.Counters, error)
}

// Step names a stage in logs and errors
type Step struct {
	Name  string
	Stage Stage
}

// Summary describes the last finished run
type Summary struct {
	RunID      uint           `json:"run_id"`
	TraceID    string         `json:"trace_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counters   model.Counters `json:"counters"`
	Error      string         `json:"error,omitempty"`
}

// Pipeline runs its steps strictly in order under the run lock
type Pipeline struct {
	lock    runlock.Locker
	tracker *runlog.Tracker
	steps   []Step
	metrics *metrics.Metrics

	mu   sync.RWMutex
	last *Summary
}

// New creates a pipeline. m may be nil.
func New(lock runlock.Locker, tracker *runlog.Tracker, m *metrics.Metrics, steps ...Step) *Pipeline {
	return &Pipeline{
		lock:    lock,
		tracker: tracker,
		steps:   steps,
		metrics: m,
	}
}

// Run executes one audited run. A stage error stops the remaining stages
// and is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	release, err := p.lock.Acquire(ctx)
	if err != nil {
		if errors.Is(err, runlock.ErrLocked) {
			if p.metrics != nil {
				p.metrics.Skipped()
			}
			logrus.Warn("Pipeline run skipped, another run is active")
			return ErrRunInProgress
		}
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer release()

	started := time.Now()
	var ledger *runlog.Ledger
	err = p.tracker.Track(ctx, func(ctx context.Context, l *runlog.Ledger) error {
		ledger = l
		for _, step := range p.steps {
			if err := ctx.Err(); err != nil {
				return err
			}

			c, err := step.Stage.Run(ctx, l.Logger.WithField("stage", step.Name))
			l.Add(c)
			if err != nil {
				return fmt.Errorf("%s stage: %w", step.Name, err)
			}
		}
		return nil
	})

	if ledger != nil {
		p.record(ledger, started, err)
	}
	return err
}

func (p *Pipeline) record(ledger *runlog.Ledger, started time.Time, err error) {
	finished := time.Now()
	summary := &Summary{
		RunID:      ledger.RunID,
		TraceID:    ledger.TraceID,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Counters:   ledger.Counters(),
	}
	if err != nil {
		summary.Error = err.Error()
	}

	if p.metrics != nil {
		p.metrics.ObserveRun(summary.Counters, finished.Sub(started), err)
	}

	p.mu.Lock()
	p.last = summary
	p.mu.Unlock()
}

// LastRun returns the summary of the last run this process finished
func (p *Pipeline) LastRun() *Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return nil
	}
	s := *p.last
	return &s
}
