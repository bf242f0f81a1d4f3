package liability

import (
	"testing"
	"time"

	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lpn finance.Ticker = "USDC"

func coin(n uint64) finance.Coin { return finance.NewCoin(n, lpn) }

func pct(p uint32) finance.Percent { return finance.FromPercent(p) }

func defaultLadder(t *testing.T) Liability {
	t.Helper()
	l, err := New(pct(65), pct(70), pct(72), pct(75), pct(78), pct(80), time.Hour)
	require.NoError(t, err)
	return l
}

func TestNew_RejectsBrokenLadder(t *testing.T) {
	tests := []struct {
		name   string
		ladder [6]uint32
		recalc time.Duration
	}{
		{"initial above healthy", [6]uint32{71, 70, 72, 75, 78, 80}, time.Hour},
		{"healthy equals first", [6]uint32{65, 72, 72, 75, 78, 80}, time.Hour},
		{"first equals second", [6]uint32{65, 70, 75, 75, 78, 80}, time.Hour},
		{"second above third", [6]uint32{65, 70, 72, 79, 78, 80}, time.Hour},
		{"third above max", [6]uint32{65, 70, 72, 75, 81, 80}, time.Hour},
		{"max at hundred", [6]uint32{65, 70, 72, 75, 78, 100}, time.Hour},
		{"zero recalculation", [6]uint32{65, 70, 72, 75, 78, 80}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.ladder
			_, err := New(pct(p[0]), pct(p[1]), pct(p[2]), pct(p[3]), pct(p[4]), pct(p[5]), tt.recalc)
			assert.ErrorIs(t, err, apperrors.ErrBrokenInvariant)
		})
	}
}

func TestNew_AllowsThirdEqualToMax(t *testing.T) {
	_, err := New(pct(70), pct(70), pct(72), pct(75), pct(80), pct(80), time.Hour)
	assert.NoError(t, err)
}

func TestClassify_Boundaries(t *testing.T) {
	l := defaultLadder(t)
	value := coin(1_000_000)

	tests := []struct {
		due  uint64
		want Level
	}{
		{0, LevelHealthy},
		{699_999, LevelHealthy},
		{700_000, LevelHealthy},
		{719_999, LevelHealthy},
		{720_000, LevelFirst},
		{749_999, LevelFirst},
		{750_000, LevelSecond},
		{780_000, LevelThird},
		{799_999, LevelThird},
		{800_000, LevelMax},
		{2_000_000, LevelMax},
	}
	for _, tt := range tests {
		got, err := l.Classify(coin(tt.due), value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "due %d", tt.due)
	}
}

func TestClassify_ExactRatioWithoutRounding(t *testing.T) {
	l := defaultLadder(t)

	// 72/100 exactly vs one unit short of it on an awkward value
	got, err := l.Classify(coin(72), coin(100))
	require.NoError(t, err)
	assert.Equal(t, LevelFirst, got)

	got, err = l.Classify(coin(719), coin(1000))
	require.NoError(t, err)
	assert.Equal(t, LevelHealthy, got)
}

func TestClassify_WorthlessPosition(t *testing.T) {
	l := defaultLadder(t)

	got, err := l.Classify(coin(1), coin(0))
	require.NoError(t, err)
	assert.Equal(t, LevelMax, got)

	_, err = l.Classify(coin(1), finance.NewCoin(1, "ATOM"))
	assert.ErrorIs(t, err, apperrors.ErrCurrencyMismatch)
}

func TestAmountToLiquidate(t *testing.T) {
	l := defaultLadder(t)

	// (850 - 0.7*1000) / 0.3 = 500
	x, err := l.AmountToLiquidate(coin(850), coin(1000))
	require.NoError(t, err)
	assert.Equal(t, "500", x.Amount().String())

	// (801 - 700) / 0.3 = 336.67
	x, err = l.AmountToLiquidate(coin(801), coin(1000))
	require.NoError(t, err)
	assert.Equal(t, "337", x.Amount().String())

	x, err = l.AmountToLiquidate(coin(600), coin(1000))
	require.NoError(t, err)
	assert.True(t, x.IsZero())
}

func TestAmountToLiquidate_RestoresHealthy(t *testing.T) {
	l := defaultLadder(t)

	for _, due := range []uint64{800_000, 812_345, 900_001, 990_000} {
		value := coin(1_000_000)
		x, err := l.AmountToLiquidate(coin(due), value)
		require.NoError(t, err)

		debtAfter, err := coin(due).Sub(x)
		require.NoError(t, err)
		valueAfter, err := value.Sub(x)
		require.NoError(t, err)

		level, err := l.Classify(debtAfter, valueAfter)
		require.NoError(t, err)
		assert.Equal(t, LevelHealthy, level, "due %d", due)
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "second", LevelSecond.String())
	assert.Equal(t, "max", LevelMax.String())
}
