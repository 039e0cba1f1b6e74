package extraction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CallerLocker serializes stages 5-6 of the pipeline for a given caller_id,
// per spec.md §4.5 stage 7. One logical lock per caller_id; the
// implementation is free to choose any granularity at or below that.
type CallerLocker interface {
	// Lock blocks until the caller_id's critical section is acquired,
	// returning a release function. The release function is safe to call
	// exactly once.
	Lock(ctx context.Context, callerID string) (func(), error)
}

// localLocker is a sharded-by-callerID mutex map. Entries are created on
// first use and removed once their waiter count drops to zero, so the map
// never grows unbounded across the lifetime of a long-running process.
type localLocker struct {
	mu      sync.Mutex
	callers map[string]*callerEntry
}

type callerEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocalCallerLocker builds a single-process CallerLocker, sufficient
// when the job scheduler's worker pool is the only writer (the default,
// single-instance deployment).
func NewLocalCallerLocker() CallerLocker {
	return &localLocker{callers: make(map[string]*callerEntry)}
}

func (l *localLocker) Lock(ctx context.Context, callerID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.callers[callerID]
	if !ok {
		entry = &callerEntry{}
		l.callers[callerID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	release := func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.callers, callerID)
		}
		l.mu.Unlock()
	}
	return release, nil
}

// redisLocker is a distributed CallerLocker for multi-instance deployments,
// implemented as a SET NX PX spin-lock. Grounded on the same
// redis.UniversalClient usage as profilecache.RedisBackend.
type redisLocker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
}

// NewRedisCallerLocker builds a distributed CallerLocker backed by client.
func NewRedisCallerLocker(client redis.UniversalClient) CallerLocker {
	return &redisLocker{client: client, prefix: "extraction_lock:", ttl: 30 * time.Second, retryDelay: 25 * time.Millisecond}
}

func (l *redisLocker) Lock(ctx context.Context, callerID string) (func(), error) {
	key := l.prefix + callerID
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire caller lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
	release := func() {
		// Best effort: only clear the key if we still own it, so a lock
		// that outlived its TTL and was reacquired elsewhere is left alone.
		script := redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`)
		_ = script.Run(context.Background(), l.client, []string{key}, token).Err()
	}
	return release, nil
}
