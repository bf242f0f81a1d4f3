package mock

import (
	"context"
	"testing"

	"lease_engine/internal/core"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Verifies that a resubmitted order id does not create a second sale
func TestMockSwapService_IdempotentOrderID(t *testing.T) {
	swap := NewMockSwapService()
	order := core.LiquidationOrder{ID: "order-1", LeaseID: "lease-1", Amount: finance.NewCoin(10, "ATOM")}

	require.NoError(t, swap.Sell(context.Background(), order))
	require.NoError(t, swap.Sell(context.Background(), order))
	assert.Len(t, swap.Orders(), 1)
}

func TestMockPriceSource(t *testing.T) {
	src := NewMockPriceSource()
	ctx := context.Background()

	_, err := src.CurrentPrice(ctx, "ATOM", "USDC")
	assert.ErrorIs(t, err, apperrors.ErrNoPrice)

	p, err := finance.NewPrice(finance.NewCoin(1, "ATOM"), finance.NewCoin(10, "USDC"))
	require.NoError(t, err)
	src.SetPrice(p)
	got, err := src.CurrentPrice(ctx, "ATOM", "USDC")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(p))

	src.SetError("ATOM", apperrors.ErrStalePrice)
	_, err = src.CurrentPrice(ctx, "ATOM", "USDC")
	assert.ErrorIs(t, err, apperrors.ErrStalePrice)
	assert.Equal(t, 3, src.Calls())
}
