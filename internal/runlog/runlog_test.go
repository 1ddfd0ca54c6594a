package runlog

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftbot/internal/model"
	"shiftbot/internal/repository"
	"shiftbot/internal/testutil"
)

func newTracker(t *testing.T) (*Tracker, *repository.Repository, *testutil.Clock) {
	t.Helper()
	repo := repository.New(testutil.NewDB(t))
	clock := &testutil.Clock{T: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Tracker{Store: repo, Logger: logger, Now: clock.Now}, repo, clock
}

func TestTrackAddsStageCounters(t *testing.T) {
	tracker, repo, clock := newTracker(t)
	ctx := context.Background()

	var runID uint
	err := tracker.Track(ctx, func(ctx context.Context, ledger *Ledger) error {
		runID = ledger.RunID
		ledger.Add(model.Counters{Scanned: 3, Matched: 1, Skipped: 2})
		ledger.Add(model.Counters{Parsed: 4})
		ledger.Add(model.Counters{Upserted: 4})
		ledger.Logger.WithField("attachment_id", 7).Info("Parsed roster")
		clock.Advance(time.Minute)
		return nil
	})
	require.NoError(t, err)

	run, err := repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.Counters{Scanned: 3, Matched: 1, Parsed: 4, Upserted: 4, Skipped: 2}, run.Counters())
	assert.NotEmpty(t, run.TraceID)
	assert.Equal(t, clock.T.Add(-time.Minute), run.StartedAtUTC.UTC())
	require.NotNil(t, run.FinishedAtUTC)
	assert.Equal(t, clock.T, run.FinishedAtUTC.UTC())

	require.NotNil(t, run.Notes)
	assert.Contains(t, *run.Notes, "INFO Parsed roster attachment_id=7")
	assert.Contains(t, *run.Notes, "Run finished")
	assert.NotContains(t, *run.Notes, "trace_id")
}

func TestTrackRecordsReturnedError(t *testing.T) {
	tracker, repo, _ := newTracker(t)
	ctx := context.Background()
	boom := errors.New("mailbox unreachable")

	var runID uint
	err := tracker.Track(ctx, func(ctx context.Context, ledger *Ledger) error {
		runID = ledger.RunID
		ledger.Add(model.Counters{Failures: 1})
		return boom
	})
	assert.Same(t, boom, err)

	run, err := repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Failures)
	require.NotNil(t, run.Notes)
	assert.Contains(t, *run.Notes, "Failure: mailbox unreachable")
	assert.NotNil(t, run.FinishedAtUTC)
}

func TestTrackRecordsPanic(t *testing.T) {
	tracker, repo, _ := newTracker(t)
	ctx := context.Background()

	var runID uint
	assert.PanicsWithValue(t, "layout table corrupt", func() {
		_ = tracker.Track(ctx, func(ctx context.Context, ledger *Ledger) error {
			runID = ledger.RunID
			panic("layout table corrupt")
		})
	})

	run, err := repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failures)
	require.NotNil(t, run.Notes)
	assert.Contains(t, *run.Notes, "Failure: panic: layout table corrupt")
}

func TestTrackRunsAreIndependent(t *testing.T) {
	tracker, repo, _ := newTracker(t)
	ctx := context.Background()

	var first, second uint
	require.NoError(t, tracker.Track(ctx, func(ctx context.Context, ledger *Ledger) error {
		first = ledger.RunID
		ledger.Add(model.Counters{Scanned: 5})
		ledger.Logger.Info("first run line")
		return nil
	}))
	require.NoError(t, tracker.Track(ctx, func(ctx context.Context, ledger *Ledger) error {
		second = ledger.RunID
		ledger.Add(model.Counters{Scanned: 1})
		return nil
	}))
	require.NotEqual(t, first, second)

	a, err := repo.GetRun(ctx, first)
	require.NoError(t, err)
	b, err := repo.GetRun(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, 5, a.Scanned)
	assert.Equal(t, 1, b.Scanned)
	assert.NotEqual(t, a.TraceID, b.TraceID)
	require.NotNil(t, b.Notes)
	assert.NotContains(t, *b.Notes, "first run line")
}

func TestTrackPersistsAfterCancel(t *testing.T) {
	tracker, repo, _ := newTracker(t)
	ctx, cancel := context.WithCancel(context.Background())

	var runID uint
	err := tracker.Track(ctx, func(ctx context.Context, ledger *Ledger) error {
		runID = ledger.RunID
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	run, err := repo.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failures)
	assert.NotNil(t, run.FinishedAtUTC)
}

func TestLedgerCounters(t *testing.T) {
	l := &Ledger{}
	l.Add(model.Counters{Skipped: 1})
	l.Add(model.Counters{Skipped: 2, Failures: 1})
	assert.Equal(t, model.Counters{Skipped: 3, Failures: 1}, l.Counters())
}
