package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrLockLost is returned when the distributed lock expired before it was released.
var ErrLockLost = errors.New("ledger lock expired before release")

// Locker serializes work on one key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// LocalLocker is an in-process lock keyed by name. Sufficient for a single instance.
type LocalLocker struct {
	mapMu sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker builds an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) get(key string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	if _, exists := l.locks[key]; !exists {
		l.locks[key] = &sync.Mutex{}
	}
	return l.locks[key]
}

// WithLock runs fn while holding the lock for key.
func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	mu := l.get(key)
	mu.Lock()
	defer mu.Unlock()
	return fn(ctx)
}

// RedisLocker serializes across service instances using the RedLock algorithm.
type RedisLocker struct {
	rs         *redsync.Redsync
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

// NewRedisLocker builds a distributed locker on top of a go-redis client.
func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = 10 * time.Second
	}
	return &RedisLocker{
		rs:         redsync.New(goredis.NewPool(client)),
		expiry:     expiry,
		tries:      32,
		retryDelay: 100 * time.Millisecond,
	}
}

// WithLock runs fn while holding the distributed lock for key. The lock is
// extended every third of its expiry until fn returns; if an extension fails
// the lock may have passed to another holder and ErrLockLost is reported.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(l.retryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}

	stop := make(chan struct{})
	extended := make(chan bool, 1)
	go l.keepAlive(ctx, mutex, stop, extended)

	fnErr := fn(ctx)
	close(stop)
	held := <-extended

	ok, err := mutex.UnlockContext(context.WithoutCancel(ctx))
	if fnErr != nil {
		return fnErr
	}
	if !held || errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return ErrLockLost
	}
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if !ok {
		return ErrLockLost
	}
	return nil
}

// keepAlive extends mutex until stop closes, then reports whether every
// extension succeeded.
func (l *RedisLocker) keepAlive(ctx context.Context, mutex *redsync.Mutex, stop <-chan struct{}, extended chan<- bool) {
	ticker := time.NewTicker(l.expiry / 3)
	defer ticker.Stop()
	held := true
	for {
		select {
		case <-stop:
			extended <- held
			return
		case <-ticker.C:
			if !held {
				continue
			}
			if ok, err := mutex.ExtendContext(context.WithoutCancel(ctx)); err != nil || !ok {
				held = false
			}
		}
	}
}
