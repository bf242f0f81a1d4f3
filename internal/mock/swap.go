package mock

import (
	"context"
	"sync"

	"lease_engine/internal/core"
)

// MockSwapService records liquidation orders. Resubmitting an order ID
// does not create a second sale.
type MockSwapService struct {
	orders []core.LiquidationOrder
	seen   map[string]bool
	err    error
	mu     sync.Mutex
}

func NewMockSwapService() *MockSwapService {
	return &MockSwapService{seen: make(map[string]bool)}
}

func (m *MockSwapService) Sell(ctx context.Context, order core.LiquidationOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.seen[order.ID] {
		return nil
	}
	m.seen[order.ID] = true
	m.orders = append(m.orders, order)
	return nil
}

// SetError makes Sell fail
func (m *MockSwapService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Orders returns the accepted orders in submission order
func (m *MockSwapService) Orders() []core.LiquidationOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.LiquidationOrder(nil), m.orders...)
}
