package allocator

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"github.com/sr-verde/gitmentario/core/config"
)

// Unlock releases a lock. Calling it more than once is a no-op.
type Unlock func()

// Locker provides mutual exclusion per key.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// NewLocker returns the locker for the configured backend. The redis backend
// still takes the in-process lock first so local contention never reaches redis.
func NewLocker(cfg config.AllocatorConfig, rdb *redis.Client) Locker {
	local := NewLocalLocker()
	if cfg.Backend != config.AllocatorRedis || rdb == nil {
		return local
	}
	return Chain(local, NewRedisLocker(rdb, cfg.LockTTL))
}

type localEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// LocalLocker holds one weighted semaphore per key for as long as someone
// holds or waits for it.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.release(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.release(key, e)
		})
	}, nil
}

func (l *LocalLocker) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type chain []Locker

// Chain acquires every locker in order and releases them in reverse.
func Chain(lockers ...Locker) Locker {
	return chain(lockers)
}

func (c chain) Lock(ctx context.Context, key string) (Unlock, error) {
	held := make([]Unlock, 0, len(c))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for _, l := range c {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, unlock)
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}
