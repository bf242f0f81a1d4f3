package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lease_engine/internal/core"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
	"lease_engine/pkg/retry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

// resilientPrices retries retryable price errors and stops calling a
// failing source for a while. Every failure it returns still wraps a
// price error so it can never be read as "no liquidation".
type resilientPrices struct {
	source   core.IPriceSource
	executor failsafe.Executor[finance.Price]
}

func newResilientPrices(source core.IPriceSource, policy retry.RetryPolicy, breakerWait time.Duration, logger core.ILogger) *resilientPrices {
	if breakerWait <= 0 {
		breakerWait = 10 * time.Second
	}
	breaker := circuitbreaker.NewBuilder[finance.Price]().
		HandleIf(func(_ finance.Price, err error) bool {
			return apperrors.IsRetryable(err)
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(breakerWait).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			logger.Warn("Price source circuit breaker state changed", "from", e.OldState, "to", e.NewState)
		}).
		Build()

	return &resilientPrices{
		source:   source,
		executor: failsafe.With[finance.Price](retry.NewPolicy[finance.Price](policy, apperrors.IsRetryable), breaker),
	}
}

func (p *resilientPrices) CurrentPrice(ctx context.Context, asset, lpn finance.Ticker) (finance.Price, error) {
	price, err := p.executor.WithContext(ctx).Get(func() (finance.Price, error) {
		return p.source.CurrentPrice(ctx, asset, lpn)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return finance.Price{}, fmt.Errorf("price source unavailable: %w: %w", apperrors.ErrNoPrice, err)
	}
	return price, err
}
