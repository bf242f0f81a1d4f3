// Package alarms is the in-process alarm service: it keeps one pending time
// alarm and one price bracket per lease and delivers them back to the engine.
package alarms

import (
	"context"
	"time"

	"lease_engine/internal/core"
	"lease_engine/pkg/concurrency"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/retry"
	"lease_engine/pkg/telemetry"

	"golang.org/x/time/rate"
)

// Handler re-evaluates a lease when its alarm fires
type Handler func(ctx context.Context, leaseID string) error

// DispatchConfig bounds alarm delivery
type DispatchConfig struct {
	Rate  float64 // deliveries per second
	Burst int
	Retry retry.RetryPolicy
}

// Dispatcher runs deliveries on the pool under a shared rate limit
type Dispatcher struct {
	kind    string
	handler Handler
	pool    *concurrency.WorkerPool
	limiter *rate.Limiter
	retry   retry.RetryPolicy
	logger  core.ILogger
}

func NewDispatcher(kind string, handler Handler, pool *concurrency.WorkerPool, limiter *rate.Limiter, cfg DispatchConfig, logger core.ILogger) *Dispatcher {
	return &Dispatcher{
		kind:    kind,
		handler: handler,
		pool:    pool,
		limiter: limiter,
		retry:   cfg.Retry,
		logger:  logger,
	}
}

// NewLimiter builds the limiter shared by time and price deliveries
func NewLimiter(cfg DispatchConfig) *rate.Limiter {
	if cfg.Rate <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.Rate), burst)
}

// deliver submits one alarm; onFailure runs when the handler still fails
// with a retryable error after all attempts.
func (d *Dispatcher) deliver(ctx context.Context, leaseID string, onFailure func()) {
	err := d.pool.Go(ctx, func(ctx context.Context) {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
		start := time.Now()
		err := retry.Do(ctx, d.retry, apperrors.IsRetryable, func() error {
			return d.handler(ctx, leaseID)
		})
		telemetry.GetGlobalMetrics().RecordAlarmDelivered(ctx, d.kind)
		if err != nil {
			d.logger.Warn("Alarm delivery failed", "kind", d.kind, "lease_id", leaseID, "elapsed", time.Since(start), "error", err)
			if apperrors.IsRetryable(err) && onFailure != nil {
				onFailure()
			}
		}
	})
	if err != nil {
		d.logger.Error("Failed to queue alarm", "kind", d.kind, "lease_id", leaseID, "error", err)
	}
}
