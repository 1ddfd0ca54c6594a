package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftbot/internal/config"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestSchedulerRestart(t *testing.T) {
	sched := New(&config.SchedulerConfig{IntervalMinutes: 60}, &countingRunner{})

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())

	assert.Error(t, sched.Start(), "double start")

	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsRunning())
	assert.True(t, sched.GetNextRun().IsZero())

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	// context should be active after restart
	require.NotNil(t, sched.ctx)
	assert.NoError(t, sched.ctx.Err())
	assert.Len(t, sched.cron.Entries(), 1)

	require.NoError(t, sched.Stop())
}

func TestSchedulerRejectsZeroInterval(t *testing.T) {
	sched := New(&config.SchedulerConfig{}, &countingRunner{})
	assert.Error(t, sched.Start())
	assert.False(t, sched.IsRunning())
}

func TestRunOnce(t *testing.T) {
	runner := &countingRunner{err: errors.New("mailbox down")}
	sched := New(&config.SchedulerConfig{IntervalMinutes: 15}, runner)

	err := sched.RunOnce(context.Background())
	assert.EqualError(t, err, "mailbox down")
	assert.Equal(t, int32(1), runner.calls.Load())
	sched.Wait()
}

func TestRunScheduledSwallowsErrors(t *testing.T) {
	runner := &countingRunner{err: errors.New("boom")}
	sched := New(&config.SchedulerConfig{IntervalMinutes: 15}, runner)
	require.NoError(t, sched.Start())
	defer sched.Stop()

	assert.NotPanics(t, sched.runScheduled)
	assert.Equal(t, int32(1), runner.calls.Load())
}
