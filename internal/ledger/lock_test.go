package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_SerializesSameKey(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := NewRedisLocker(client, 5*time.Second)
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, LockKey(BookCustomer, "c1"), func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&maxSeen) {
					atomic.StoreInt32(&maxSeen, n)
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
	assert.False(t, mr.Exists(LockKey(BookCustomer, "c1")), "lock must be released")
}

func TestRedisLocker_PropagatesCallbackError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := NewRedisLocker(client, time.Second)
	boom := assert.AnError
	err = locker.WithLock(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	done := make(chan struct{})

	err := l.WithLock(ctx, "a", func(ctx context.Context) error {
		go func() {
			_ = l.WithLock(ctx, "b", func(context.Context) error { return nil })
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-time.After(time.Second):
			t.Fatal("lock on b blocked by a")
			return nil
		}
	})
	require.NoError(t, err)
}

func TestRedisLocker_ExtendsWhileCallbackRuns(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	const expiry = 300 * time.Millisecond
	locker := NewRedisLocker(client, expiry)
	key := LockKey(BookAccount, "a1")

	err = locker.WithLock(context.Background(), key, func(context.Context) error {
		// 400ms of server time passes in total, more than one expiry
		mr.FastForward(200 * time.Millisecond)
		time.Sleep(expiry / 2)
		mr.FastForward(200 * time.Millisecond)
		if !mr.Exists(key) {
			return errors.New("lock expired while held")
		}
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(key), "lock must be released")
}

func TestRedisLocker_ReportsLostLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := NewRedisLocker(client, 300*time.Millisecond)
	key := LockKey(BookCustomer, "c2")

	err = locker.WithLock(context.Background(), key, func(context.Context) error {
		mr.FastForward(time.Second)
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, ErrLockLost)
}
