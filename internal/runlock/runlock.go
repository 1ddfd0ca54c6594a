// Package runlock guarantees that at most one pipeline run is active.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrLocked is returned when another run holds the lock
var ErrLocked = errors.New("run lock is held")

// Locker hands out the run lock. The returned release func must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Local is an in-process lock
type Local struct {
	mu sync.Mutex
}

// NewLocal creates an in-process lock
func NewLocal() *Local {
	return &Local{}
}

// Acquire takes the lock without waiting
func (l *Local) Acquire(ctx context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrLocked
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by every process using the same key. The TTL
// bounds how long a crashed holder blocks other runs.
type Redis struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedis creates a lock on key
func NewRedis(rdb *redis.Client, key string, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, key: key, ttl: ttl}
}

// Acquire sets the key with a fresh token if it is absent
func (r *Redis) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("run lock SETNX: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The TTL frees the key if this fails
			if err := releaseScript.Run(context.WithoutCancel(ctx), r.rdb, []string{r.key}, token).Err(); err != nil {
				logrus.WithField("key", r.key).Errorf("Failed to release run lock: %v", err)
			}
		})
	}, nil
}

// Chain acquires every locker in order and releases in reverse
type Chain []Locker

func (c Chain) Acquire(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, l := range c {
		release, err := l.Acquire(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
