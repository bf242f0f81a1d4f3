// Package core defines the collaborator interfaces of the lease engine
package core

import (
	"context"
	"time"

	"lease_engine/pkg/finance"
)

// IPriceSource quotes lease assets in the lending currency.
// Fails with ErrNoPrice or ErrStalePrice when no fresh quote exists.
type IPriceSource interface {
	CurrentPrice(ctx context.Context, asset, lpn finance.Ticker) (finance.Price, error)
}

// ITimeAlarms delivers a time alarm for a lease at a given instant.
// A new request for the same lease replaces the pending one.
type ITimeAlarms interface {
	ScheduleTime(ctx context.Context, leaseID string, at time.Time) error
	CancelTime(ctx context.Context, leaseID string) error
}

// IPriceAlarms delivers a price alarm once the spot price leaves the bracket:
// at or below below, or strictly above above when set.
type IPriceAlarms interface {
	SchedulePrice(ctx context.Context, leaseID string, below finance.Price, above *finance.Price) error
	CancelPrice(ctx context.Context, leaseID string) error
}

// ISwapService sells collateral asynchronously; completion arrives as a separate event
type ISwapService interface {
	Sell(ctx context.Context, order LiquidationOrder) error
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
