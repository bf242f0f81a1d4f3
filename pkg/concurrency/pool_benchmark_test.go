package concurrency

import (
	"context"
	"sync"
	"testing"

	"lease_engine/pkg/logging"
)

// BenchmarkWorkerPool_AlarmFanOut mimics a burst of alarm deliveries,
// one task per lease, each waiting on its own completion.
func BenchmarkWorkerPool_AlarmFanOut(b *testing.B) {
	pool := NewWorkerPool(PoolConfig{
		Name:        "AlarmBench",
		MaxWorkers:  8,
		MaxCapacity: 1024,
	}, logging.NewNop())
	defer pool.Stop()

	ctx := context.Background()
	var wg sync.WaitGroup
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		if err := pool.Go(ctx, func(context.Context) { wg.Done() }); err != nil {
			wg.Done()
		}
	}
	wg.Wait()
}

func BenchmarkWorkerPool_SubmitAndWait(b *testing.B) {
	pool := NewWorkerPool(PoolConfig{
		Name:        "SettleBench",
		MaxWorkers:  4,
		MaxCapacity: 64,
	}, logging.NewNop())
	defer pool.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.SubmitAndWait(func() {})
	}
}
