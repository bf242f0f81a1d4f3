package alarms

import (
	"testing"
	"time"

	"lease_engine/internal/lease/liability"
	"lease_engine/internal/lease/liquidation"
	"lease_engine/internal/lease/loan"
	"lease_engine/internal/lease/position"
	"lease_engine/pkg/finance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lpn   finance.Ticker = "USDC"
	asset finance.Ticker = "ATOM"
)

const day = 24 * time.Hour

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func usdc(n uint64) finance.Coin { return finance.NewCoin(n, lpn) }

func testPosition(t *testing.T, ticker finance.Ticker, amount, minTransaction uint64) position.Position {
	t.Helper()
	p := finance.FromPercent
	ladder, err := liability.New(p(65), p(70), p(72), p(75), p(78), p(80), time.Hour)
	require.NoError(t, err)
	spec, err := position.NewSpec(ladder, usdc(15_000), usdc(minTransaction))
	require.NoError(t, err)
	pos, err := position.New(finance.NewCoin(amount, ticker), spec)
	require.NoError(t, err)
	return pos
}

func testLoan(t *testing.T, principal uint64, rate finance.Percent, start time.Time) loan.Loan {
	t.Helper()
	l, err := loan.New(usdc(principal), rate, 0, start, 30*day, 10*day)
	require.NoError(t, err)
	return l
}

func price(t *testing.T, amount, quote uint64) finance.Price {
	t.Helper()
	p, err := finance.NewPrice(finance.NewCoin(amount, asset), usdc(quote))
	require.NoError(t, err)
	return p
}

func TestSchedule_WarningFirstBracket(t *testing.T) {
	pos := testPosition(t, asset, 1_000_000, 100)
	l := testLoan(t, 720_000, 0, now)

	status, err := liquidation.Evaluate(now, price(t, 1, 1), mustState(t, l, now), pos)
	require.NoError(t, err)
	require.Equal(t, liquidation.Warning(liability.LevelFirst), status)

	batch, err := Schedule(now, status, l, pos)
	require.NoError(t, err)
	require.NotNil(t, batch.Price)
	require.NotNil(t, batch.Price.Above)

	// 720_000 / (1_000_000 * 75%) and 720_000 / (1_000_000 * 72%)
	assert.Equal(t, 0, batch.Price.Below.Cmp(price(t, 100, 96)))
	assert.Equal(t, 0, batch.Price.Above.Cmp(price(t, 1, 1)))
}

func TestSchedule_Brackets(t *testing.T) {
	pos := testPosition(t, asset, 1_000_000, 100)
	l := testLoan(t, 600_000, 0, now)

	threshold := func(pct uint32) finance.Price {
		// 600_000 / (1_000_000 * pct%)
		return price(t, uint64(pct)*10_000, 600_000)
	}

	tests := []struct {
		name   string
		status liquidation.Status
		below  finance.Price
		above  *finance.Price
	}{
		{"no warning", liquidation.NoWarning(), threshold(72), nil},
		{"partial", liquidation.Partial(finance.NewCoin(5, asset), liquidation.CauseOverdue), threshold(72), nil},
		{"first", liquidation.Warning(liability.LevelFirst), threshold(75), ptr(threshold(72))},
		{"second", liquidation.Warning(liability.LevelSecond), threshold(78), ptr(threshold(75))},
		{"third", liquidation.Warning(liability.LevelThird), threshold(80), ptr(threshold(78))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := Schedule(now, tt.status, l, pos)
			require.NoError(t, err)
			require.NotNil(t, batch.Price)
			assert.Equal(t, 0, batch.Price.Below.Cmp(tt.below))
			if tt.above == nil {
				assert.Nil(t, batch.Price.Above)
			} else {
				require.NotNil(t, batch.Price.Above)
				assert.Equal(t, 0, batch.Price.Above.Cmp(*tt.above))
			}
		})
	}
}

func TestSchedule_ProjectsDebtToHorizon(t *testing.T) {
	pos := testPosition(t, asset, 1_000_000, 100)
	l := testLoan(t, 600_000, finance.FromPercent(50), now)

	batch, err := Schedule(now, liquidation.NoWarning(), l, pos)
	require.NoError(t, err)
	require.NotNil(t, batch.Price)

	// interest accrued over the hour raises the price at which the warning starts
	atNow := price(t, 720_000, 600_000)
	assert.Equal(t, 1, batch.Price.Below.Cmp(atNow))
}

func TestSchedule_NoAlarmsWhenTerminal(t *testing.T) {
	pos := testPosition(t, asset, 1_000_000, 100)
	l := testLoan(t, 600_000, 0, now)

	for _, s := range []liquidation.Status{liquidation.NoDebt(), liquidation.Full(pos.Asset, liquidation.CauseLiability)} {
		batch, err := Schedule(now, s, l, pos)
		require.NoError(t, err)
		assert.True(t, batch.Empty(), s.String())
	}
}

func TestSchedule_LpnAssetHasNoPriceAlarm(t *testing.T) {
	pos := testPosition(t, lpn, 1_000_000, 100)
	l := testLoan(t, 600_000, 0, now)

	batch, err := Schedule(now, liquidation.NoWarning(), l, pos)
	require.NoError(t, err)
	assert.Nil(t, batch.Price)
	require.NotNil(t, batch.Time)
}

func TestSchedule_TimeAlarm(t *testing.T) {
	pos := testPosition(t, asset, 1_000_000, 100)

	t.Run("recalculation", func(t *testing.T) {
		batch, err := Schedule(now, liquidation.NoWarning(), testLoan(t, 600_000, 0, now), pos)
		require.NoError(t, err)
		require.NotNil(t, batch.Time)
		assert.Equal(t, now.Add(time.Hour), *batch.Time)
	})

	t.Run("grace period end", func(t *testing.T) {
		start := now.Add(-40*day + 30*time.Minute)
		batch, err := Schedule(now, liquidation.NoWarning(), testLoan(t, 600_000, 0, start), pos)
		require.NoError(t, err)
		require.NotNil(t, batch.Time)
		assert.Equal(t, now.Add(30*time.Minute), *batch.Time)
	})

	t.Run("overdue collection hint", func(t *testing.T) {
		l := testLoan(t, 100_000_000, finance.FromPercent(14), now.Add(-45*day))
		st := mustState(t, l, now)
		total, err := st.TotalDueInterest()
		require.NoError(t, err)
		minTx, err := total.Add(usdc(1))
		require.NoError(t, err)

		p := testPosition(t, asset, 1_000_000, 1)
		p.Spec.MinTransaction = minTx
		c, err := st.OverdueCollection(minTx)
		require.NoError(t, err)
		require.Less(t, c.StartIn, time.Hour)

		batch, err := Schedule(now, liquidation.NoWarning(), l, p)
		require.NoError(t, err)
		require.NotNil(t, batch.Time)
		assert.Equal(t, now.Add(c.StartIn), *batch.Time)
	})
}

func TestPriceAlarm_Triggered(t *testing.T) {
	above := price(t, 1, 2)
	alarm := PriceAlarm{Below: price(t, 1, 1), Above: &above}

	assert.True(t, alarm.Triggered(price(t, 1, 1)), "at below")
	assert.True(t, alarm.Triggered(price(t, 2, 1)), "under below")
	assert.False(t, alarm.Triggered(price(t, 2, 3)), "inside")
	assert.False(t, alarm.Triggered(price(t, 1, 2)), "at above")
	assert.True(t, alarm.Triggered(price(t, 1, 3)), "over above")
}

func mustState(t *testing.T, l loan.Loan, at time.Time) loan.State {
	t.Helper()
	st, err := l.State(at)
	require.NoError(t, err)
	return st
}

func ptr(p finance.Price) *finance.Price { return &p }
