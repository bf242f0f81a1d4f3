// Package swap provides a paper swap service that settles liquidation
// orders at the current feed price after a fixed delay.
package swap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lease_engine/internal/core"
	"lease_engine/pkg/concurrency"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
)

// CompletionHandler receives the result of a sale
type CompletionHandler func(ctx context.Context, leaseID string, result core.SwapResult) error

// PaperSwap implements core.ISwapService
type PaperSwap struct {
	prices  core.IPriceSource
	pool    *concurrency.WorkerPool
	latency time.Duration
	logger  core.ILogger

	mu       sync.Mutex
	ctx      context.Context
	onResult CompletionHandler
	seen     map[string]bool
}

func NewPaperSwap(prices core.IPriceSource, pool *concurrency.WorkerPool, latency time.Duration, logger core.ILogger) *PaperSwap {
	return &PaperSwap{
		prices:  prices,
		pool:    pool,
		latency: latency,
		logger:  logger.WithField("component", "paper_swap"),
		ctx:     context.Background(),
		seen:    make(map[string]bool),
	}
}

// OnCompleted sets the handler for finished sales
func (s *PaperSwap) OnCompleted(h CompletionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = h
}

// Run binds settlements to ctx and blocks until it is done
func (s *PaperSwap) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	<-ctx.Done()
	return nil
}

// Sell accepts an order once per order id and settles it asynchronously
func (s *PaperSwap) Sell(_ context.Context, order core.LiquidationOrder) error {
	s.mu.Lock()
	if s.seen[order.ID] {
		s.mu.Unlock()
		return nil
	}
	s.seen[order.ID] = true
	ctx := s.ctx
	s.mu.Unlock()

	return s.pool.Go(ctx, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.latency):
		}
		delivered, err := s.settle(ctx, order)
		switch {
		case err == nil:
		case delivered && apperrors.IsRetryable(err):
			// the lease booked the sale and re-evaluates on its next alarm
			s.logger.Warn("Paper sale booked, lease evaluation pending", "order_id", order.ID, "lease_id", order.LeaseID, "error", err)
		default:
			s.logger.Error("Paper settlement failed", "order_id", order.ID, "lease_id", order.LeaseID, "error", err)
			s.mu.Lock()
			delete(s.seen, order.ID)
			s.mu.Unlock()
		}
	})
}

// settle prices the order and hands the result to the completion handler.
// delivered reports whether the handler was called.
func (s *PaperSwap) settle(ctx context.Context, order core.LiquidationOrder) (delivered bool, err error) {
	price := finance.Identity(order.Lpn)
	if order.Amount.Ticker() != order.Lpn {
		if price, err = s.prices.CurrentPrice(ctx, order.Amount.Ticker(), order.Lpn); err != nil {
			return false, err
		}
	}
	proceeds, err := price.Total(order.Amount)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	h := s.onResult
	s.mu.Unlock()
	if h == nil {
		return false, fmt.Errorf("no completion handler")
	}

	s.logger.Info("Paper sale settled", "order_id", order.ID, "sold", order.Amount, "proceeds", proceeds)
	return true, h(ctx, order.LeaseID, core.SwapResult{OrderID: order.ID, Sold: order.Amount, Proceeds: proceeds})
}
