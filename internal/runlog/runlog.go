// Package runlog keeps the audit row of a pipeline run: counters reported by
// the stages and a transcript of everything logged while the run was active.
package runlog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shiftbot/internal/model"
)

// Store persists run rows
type Store interface {
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, id uint, delta model.Counters, notes string, finishedAt time.Time) error
}

// Ledger collects what one run reports. It is safe for concurrent use.
type Ledger struct {
	RunID   uint
	TraceID string

	// Logger writes to the process log and to the run's notes
	Logger *logrus.Entry

	mu       sync.Mutex
	counters model.Counters
	notes    []string
}

// Add accumulates a stage's counters
func (l *Ledger) Add(c model.Counters) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters = l.counters.Add(c)
}

// Counters returns the totals reported so far
func (l *Ledger) Counters() model.Counters {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters
}

// Notes returns the transcript, one log line per row
func (l *Ledger) Notes() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.notes, "\n")
}

func (l *Ledger) note(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = append(l.notes, line)
}

func (l *Ledger) fail(err error) {
	l.Add(model.Counters{Failures: 1})
	l.Logger.Error("Failure: " + err.Error())
}

// notesHook appends every entry of the run logger to the ledger
type notesHook struct {
	ledger *Ledger
}

func (h *notesHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *notesHook) Fire(e *logrus.Entry) error {
	var b strings.Builder
	b.WriteString(e.Time.UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(e.Level.String()))
	b.WriteByte(' ')
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k == "run_id" || k == "trace_id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}

	h.ledger.note(b.String())
	return nil
}

// Tracker opens and closes run rows
type Tracker struct {
	Store Store

	// Logger is the process logger whose output, level and formatter run
	// loggers share. Defaults to the logrus standard logger.
	Logger *logrus.Logger

	Now func() time.Time
}

// Track runs fn as one audited run using the standard logger
func Track(ctx context.Context, runs Store, fn func(ctx context.Context, ledger *Ledger) error) error {
	return (&Tracker{Store: runs}).Track(ctx, fn)
}

// Track creates the run row, hands fn a fresh ledger and persists the
// ledger once fn returns. An error from fn counts as one failure and is
// returned unchanged. A panic is recorded the same way and re-raised.
func (t *Tracker) Track(ctx context.Context, fn func(ctx context.Context, ledger *Ledger) error) (err error) {
	run := &model.Run{
		TraceID:      uuid.NewString(),
		StartedAtUTC: t.now().UTC(),
	}
	if err := t.Store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	ledger := t.newLedger(run)
	ledger.Logger.Info("Run started")

	defer func() {
		if p := recover(); p != nil {
			ledger.fail(fmt.Errorf("panic: %v", p))
			t.finish(ctx, ledger)
			panic(p)
		}
		if err != nil {
			ledger.fail(err)
		}
		if ferr := t.finish(ctx, ledger); ferr != nil && err == nil {
			err = ferr
		}
	}()

	return fn(ctx, ledger)
}

func (t *Tracker) newLedger(run *model.Run) *Ledger {
	base := t.Logger
	if base == nil {
		base = logrus.StandardLogger()
	}

	// A logger per run keeps hooks from leaking between runs
	logger := logrus.New()
	logger.SetOutput(base.Out)
	logger.SetLevel(base.GetLevel())
	logger.SetFormatter(base.Formatter)
	logger.SetReportCaller(base.ReportCaller)

	ledger := &Ledger{RunID: run.ID, TraceID: run.TraceID}
	logger.AddHook(&notesHook{ledger: ledger})
	ledger.Logger = logger.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"trace_id": run.TraceID,
	})
	return ledger
}

// finish writes the ledger even when ctx has been cancelled
func (t *Tracker) finish(ctx context.Context, ledger *Ledger) error {
	c := ledger.Counters()
	ledger.Logger.WithFields(logrus.Fields{
		"scanned":  c.Scanned,
		"matched":  c.Matched,
		"parsed":   c.Parsed,
		"upserted": c.Upserted,
		"skipped":  c.Skipped,
		"failures": c.Failures,
	}).Info("Run finished")

	err := t.Store.FinishRun(context.WithoutCancel(ctx), ledger.RunID, ledger.Counters(), ledger.Notes(), t.now())
	if err != nil {
		logrus.WithField("run_id", ledger.RunID).Errorf("Failed to persist run: %v", err)
		return fmt.Errorf("failed to finish run %d: %w", ledger.RunID, err)
	}
	return nil
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
