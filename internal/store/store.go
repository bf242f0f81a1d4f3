// Package store persists lease records between events.
package store

import (
	"context"

	"lease_engine/internal/lease"
)

// Store is the lease repository used by the engine.
// LoadLease returns apperrors.ErrLeaseNotFound for unknown ids.
type Store interface {
	SaveLease(ctx context.Context, l *lease.Lease) error
	LoadLease(ctx context.Context, id string) (*lease.Lease, error)
	ListLeases(ctx context.Context) ([]*lease.Lease, error)
	Ping(ctx context.Context) error
	Close() error
}
