package rediscache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-rea/internal/observation"
)

const (
	lockPrefix     = "rea:lock:"
	defaultLockTTL = 10 * time.Second
	releaseTimeout = 5 * time.Second
)

// releaseScript deletes each key still carrying our token and returns how
// many it deleted.
var releaseScript = redis.NewScript(`
local released = 0
for _, key in ipairs(KEYS) do
    if redis.call("GET", key) == ARGV[1] then
        released = released + redis.call("DEL", key)
    end
end
return released
`)

// renewScript extends each key still carrying our token and returns how many
// it extended.
var renewScript = redis.NewScript(`
local renewed = 0
for _, key in ipairs(KEYS) do
    if redis.call("GET", key) == ARGV[1] then
        renewed = renewed + redis.call("PEXPIRE", key, ARGV[2])
    end
end
return renewed
`)

// Locker implements observation.Locker with SET NX PX leases. Held leases are
// renewed every ttl/3, so they only expire when the holder stops renewing.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	renew  time.Duration
	retry  time.Duration
}

// NewLocker instantiates the lock helper.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{client: client, ttl: ttl, renew: max(ttl/3, time.Millisecond), retry: 10 * time.Millisecond}
}

// Lock acquires every key in the given order, polling until each is free or
// ctx is done. On failure the keys already taken are released.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func() error, error) {
	held := &lease{locker: l, token: uuid.NewString(), keys: make([]string, 0, len(keys))}
	for _, key := range keys {
		if err := l.acquire(ctx, lockPrefix+key, held.token); err != nil {
			_, _ = held.release(ctx)
			return nil, fmt.Errorf("rediscache: lock %s: %w", key, err)
		}
		held.keys = append(held.keys, lockPrefix+key)
	}

	held.stop = make(chan struct{})
	held.done = make(chan struct{})
	go held.keepAlive(context.WithoutCancel(ctx))

	var (
		once sync.Once
		err  error
	)
	return func() error {
		once.Do(func() {
			close(held.stop)
			<-held.done
			err = held.finish(ctx)
		})
		return err
	}, nil
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	wait := l.retry
	for {
		err := l.client.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if wait < 200*time.Millisecond {
			wait *= 2
		}
	}
}

// lease is one successful Lock call.
type lease struct {
	locker *Locker
	token  string
	keys   []string
	stop   chan struct{}
	done   chan struct{}
	lost   atomic.Bool
}

// keepAlive renews the lease until stop is closed or a key is found under
// another token. A failed round trip is retried on the next tick.
func (ls *lease) keepAlive(ctx context.Context) {
	defer close(ls.done)
	ticker := time.NewTicker(ls.locker.renew)
	defer ticker.Stop()
	for {
		select {
		case <-ls.stop:
			return
		case <-ticker.C:
		}
		renewed, err := renewScript.Run(ctx, ls.locker.client, ls.keys, ls.token, ls.locker.ttl.Milliseconds()).Int()
		if err != nil {
			continue
		}
		if renewed < len(ls.keys) {
			ls.lost.Store(true)
			return
		}
	}
}

// release deletes the keys still carrying the token. It runs even when the
// caller's context is already cancelled.
func (ls *lease) release(ctx context.Context) (int, error) {
	if len(ls.keys) == 0 {
		return 0, nil
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	return releaseScript.Run(rctx, ls.locker.client, ls.keys, ls.token).Int()
}

func (ls *lease) finish(ctx context.Context) error {
	released, err := ls.release(ctx)
	if err != nil {
		return fmt.Errorf("rediscache: release %v: %w", ls.keys, err)
	}
	if ls.lost.Load() || released < len(ls.keys) {
		return fmt.Errorf("rediscache: %v: %w", ls.keys, observation.ErrLockLost)
	}
	return nil
}
