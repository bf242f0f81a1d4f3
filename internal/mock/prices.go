package mock

import (
	"context"
	"fmt"
	"sync"

	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
)

// MockPriceSource implements core.IPriceSource from a settable table
type MockPriceSource struct {
	prices map[finance.Ticker]finance.Price
	errs   map[finance.Ticker]error
	calls  int
	mu     sync.Mutex
}

func NewMockPriceSource() *MockPriceSource {
	return &MockPriceSource{
		prices: make(map[finance.Ticker]finance.Price),
		errs:   make(map[finance.Ticker]error),
	}
}

// SetPrice quotes asset at price and clears any injected error
func (m *MockPriceSource) SetPrice(price finance.Price) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[price.Base()] = price
	delete(m.errs, price.Base())
}

// SetError makes every quote of asset fail with err
func (m *MockPriceSource) SetError(asset finance.Ticker, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[asset] = err
}

func (m *MockPriceSource) CurrentPrice(ctx context.Context, asset, lpn finance.Ticker) (finance.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if err := m.errs[asset]; err != nil {
		return finance.Price{}, err
	}
	p, ok := m.prices[asset]
	if !ok || p.Quote() != lpn {
		return finance.Price{}, fmt.Errorf("%s/%s: %w", asset, lpn, apperrors.ErrNoPrice)
	}
	return p, nil
}

// Calls returns how many quotes were requested
func (m *MockPriceSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
