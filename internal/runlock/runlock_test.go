package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestLocal(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	release()

	again, err := l.Acquire(ctx)
	require.NoError(t, err)
	again()
}

func TestRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()

	a := NewRedis(rdb, "shiftbot:run-lock", time.Minute)
	b := NewRedis(rdb, "shiftbot:run-lock", time.Minute)

	release, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("shiftbot:run-lock"))

	_, err = b.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	assert.False(t, mr.Exists("shiftbot:run-lock"))

	releaseB, err := b.Acquire(ctx)
	require.NoError(t, err)
	releaseB()
}

func TestRedisReleaseErrorIsLogged(t *testing.T) {
	mr, rdb := newRedis(t)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	release, err := NewRedis(rdb, "shiftbot:run-lock", time.Minute).Acquire(context.Background())
	require.NoError(t, err)

	mr.SetError("READONLY server unavailable")
	release()
	mr.SetError("")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Contains(t, entry.Message, "Failed to release run lock")
	assert.Equal(t, "shiftbot:run-lock", entry.Data["key"])
	assert.True(t, mr.Exists("shiftbot:run-lock"), "key stays until its TTL")
}

func TestRedisReleaseKeepsForeignToken(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	l := NewRedis(rdb, "lock", time.Minute)

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	// The lock expired and another process took it
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set("lock", "someone-else"))

	release()
	got, err := mr.Get("lock")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	_, err = NewRedis(rdb, "lock", time.Minute).Acquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestChain(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	local := NewLocal()
	chain := Chain{local, NewRedis(rdb, "lock", time.Minute)}

	release, err := chain.Acquire(ctx)
	require.NoError(t, err)

	// The local half is released again when the shared half is busy
	other := Chain{NewLocal(), NewRedis(rdb, "lock", time.Minute)}
	_, err = other.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = chain.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	release2, err := chain.Acquire(ctx)
	require.NoError(t, err)
	release2()
}
