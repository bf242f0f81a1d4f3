package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"lease_engine/internal/lease"
	apperrors "lease_engine/pkg/errors"
)

// MemoryStore implements Store in memory. Records are kept serialized so
// callers never share a lease with the store.
type MemoryStore struct {
	leases map[string][]byte
	mu     sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leases: make(map[string][]byte),
	}
}

func (s *MemoryStore) SaveLease(ctx context.Context, l *lease.Lease) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal lease %s: %w", l.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases[l.ID] = data
	return nil
}

func (s *MemoryStore) LoadLease(ctx context.Context, id string) (*lease.Lease, error) {
	s.mu.RLock()
	data, ok := s.leases[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lease %s: %w", id, apperrors.ErrLeaseNotFound)
	}
	return decode(data)
}

func (s *MemoryStore) ListLeases(ctx context.Context) ([]*lease.Lease, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.leases))
	for id := range s.leases {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*lease.Lease, 0, len(ids))
	for _, id := range ids {
		l, err := s.LoadLease(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

func decode(data []byte) (*lease.Lease, error) {
	var l lease.Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lease: %w", err)
	}
	return &l, nil
}
