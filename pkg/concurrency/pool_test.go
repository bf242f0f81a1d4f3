package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lease_engine/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 16}, logging.NewNop())
	defer pool.Stop()

	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&n, 1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(20), atomic.LoadInt64(&n))
}

func TestWorkerPool_NonBlockingFull(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "tiny", MaxWorkers: 1, MaxCapacity: 1, NonBlocking: true}, logging.NewNop())
	defer pool.Stop()

	release := make(chan struct{})
	var rejected bool
	for i := 0; i < 10; i++ {
		if err := pool.Submit(func() { <-release }); err != nil {
			rejected = true
			assert.Contains(t, err.Error(), "is full")
			break
		}
	}
	close(release)
	assert.True(t, rejected)
}

func TestWorkerPool_GoSkipsCancelled(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "ctx", MaxWorkers: 1, MaxCapacity: 4}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran int32
	require.NoError(t, pool.Go(ctx, func(context.Context) { atomic.StoreInt32(&ran, 1) }))
	pool.Stop()
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestWorkerPool_StopTwiceAndSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "stop", IdleTimeout: time.Second}, logging.NewNop())
	pool.SubmitAndWait(func() {})
	pool.Stop()
	pool.Stop()
	assert.Error(t, pool.Submit(func() {}))
	assert.Equal(t, uint64(1), pool.Stats()["successful_tasks"])
}
