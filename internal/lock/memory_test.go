package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocfl/internal/lock"
)

func TestMemoryLockSerializesSameObject(t *testing.T) {
	m := lock.NewMemoryLock()
	ctx := context.Background()

	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.DoInWriteLock(ctx, "obj-1", 5*time.Second, func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&maxActive)
					if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.EqualValues(t, 1, maxActive)
}

func TestMemoryLockAllowsDistinctObjectsConcurrently(t *testing.T) {
	m := lock.NewMemoryLock()
	ctx := context.Background()

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.DoInWriteLock(ctx, "a", time.Second, func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	done := make(chan struct{})
	go func() {
		err := m.DoInWriteLock(ctx, "b", time.Second, func(context.Context) error { return nil })
		require.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a distinct object id should not block")
	}
}

func TestMemoryLockPropagatesCallbackError(t *testing.T) {
	m := lock.NewMemoryLock()
	ctx := context.Background()

	sentinel := assert.AnError
	err := m.DoInWriteLock(ctx, "obj-1", time.Second, func(context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestMemoryLockAcquireRespectsCancelledContext(t *testing.T) {
	m := lock.NewMemoryLock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.DoInWriteLock(ctx, "obj-1", time.Second, func(context.Context) error {
		return nil
	})
	assert.Error(t, err)
}
