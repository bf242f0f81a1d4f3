// Package concurrency provides the bounded worker pool that runs alarm deliveries
package concurrency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lease_engine/internal/core"

	"github.com/alitto/pond"
)

// PoolConfig holds configuration for a worker pool
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	IdleTimeout time.Duration
	NonBlocking bool // If true, Submit() returns error instead of blocking when full
}

// WorkerPool wraps alitto/pond with monitoring and standardized config
type WorkerPool struct {
	pool   *pond.WorkerPool
	config PoolConfig
	logger core.ILogger

	stopOnce sync.Once
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(cfg PoolConfig, logger core.ILogger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 100
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	log := logger.WithField("component", "worker_pool").WithField("pool", cfg.Name)

	pool := pond.New(
		cfg.MaxWorkers,
		cfg.MaxCapacity,
		pond.MinWorkers(1),
		pond.IdleTimeout(cfg.IdleTimeout),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			log.Error("Worker pool panic recovered", "panic", p)
		}),
	)

	return &WorkerPool{
		pool:   pool,
		config: cfg,
		logger: log,
	}
}

// Submit adds a task to the pool
func (wp *WorkerPool) Submit(task func()) error {
	if wp.pool.Stopped() {
		return fmt.Errorf("worker pool '%s' is stopped", wp.config.Name)
	}
	if wp.config.NonBlocking {
		if !wp.pool.TrySubmit(task) {
			return fmt.Errorf("worker pool '%s' is full (capacity: %d)", wp.config.Name, wp.config.MaxCapacity)
		}
		return nil
	}
	wp.pool.Submit(task)
	return nil
}

// Go submits a task that is skipped when ctx is already done by the time a worker picks it up
func (wp *WorkerPool) Go(ctx context.Context, task func(ctx context.Context)) error {
	return wp.Submit(func() {
		if ctx.Err() != nil {
			return
		}
		task(ctx)
	})
}

// SubmitAndWait submits a task and waits for it to complete
func (wp *WorkerPool) SubmitAndWait(task func()) {
	wp.pool.SubmitAndWait(task)
}

// Stop waits for queued tasks and stops the pool. Safe to call twice.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.pool.StopAndWait()
		wp.logger.Debug("Worker pool stopped", "completed", wp.pool.CompletedTasks())
	})
}

// Stats returns pool statistics
func (wp *WorkerPool) Stats() map[string]interface{} {
	return map[string]interface{}{
		"running_workers":  wp.pool.RunningWorkers(),
		"idle_workers":     wp.pool.IdleWorkers(),
		"submitted_tasks":  wp.pool.SubmittedTasks(),
		"waiting_tasks":    wp.pool.WaitingTasks(),
		"successful_tasks": wp.pool.SuccessfulTasks(),
		"failed_tasks":     wp.pool.FailedTasks(),
	}
}
