package mock

import (
	"context"
	"sync"
	"time"

	"lease_engine/pkg/finance"
)

// PriceBracket is a scheduled price alarm
type PriceBracket struct {
	Below finance.Price
	Above *finance.Price
}

// MockTimeAlarms records the pending time alarm per lease
type MockTimeAlarms struct {
	pending map[string]time.Time
	err     error
	mu      sync.Mutex
}

func NewMockTimeAlarms() *MockTimeAlarms {
	return &MockTimeAlarms{pending: make(map[string]time.Time)}
}

func (m *MockTimeAlarms) ScheduleTime(ctx context.Context, leaseID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.pending[leaseID] = at
	return nil
}

func (m *MockTimeAlarms) CancelTime(ctx context.Context, leaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, leaseID)
	return nil
}

// Pending returns the scheduled instant for a lease
func (m *MockTimeAlarms) Pending(leaseID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.pending[leaseID]
	return at, ok
}

// SetError makes ScheduleTime fail
func (m *MockTimeAlarms) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// MockPriceAlarms records the pending price bracket per lease
type MockPriceAlarms struct {
	pending map[string]PriceBracket
	mu      sync.Mutex
}

func NewMockPriceAlarms() *MockPriceAlarms {
	return &MockPriceAlarms{pending: make(map[string]PriceBracket)}
}

func (m *MockPriceAlarms) SchedulePrice(ctx context.Context, leaseID string, below finance.Price, above *finance.Price) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[leaseID] = PriceBracket{Below: below, Above: above}
	return nil
}

func (m *MockPriceAlarms) CancelPrice(ctx context.Context, leaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, leaseID)
	return nil
}

// Pending returns the scheduled bracket for a lease
func (m *MockPriceAlarms) Pending(leaseID string) (PriceBracket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.pending[leaseID]
	return b, ok
}
