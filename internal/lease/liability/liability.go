// Package liability holds the liability ladder and classifies a debt against it.
package liability

import (
	"fmt"
	"math/big"
	"time"

	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
)

// Level is a zone on the ladder, ordered by severity
type Level int

const (
	LevelHealthy Level = iota
	LevelFirst
	LevelSecond
	LevelThird
	LevelMax
)

func (l Level) String() string {
	switch l {
	case LevelHealthy:
		return "healthy"
	case LevelFirst:
		return "first"
	case LevelSecond:
		return "second"
	case LevelThird:
		return "third"
	case LevelMax:
		return "max"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Liability is the ladder of thresholds on the debt-to-value ratio
type Liability struct {
	Initial           finance.Percent `json:"initial" yaml:"initial"`
	Healthy           finance.Percent `json:"healthy" yaml:"healthy"`
	FirstWarn         finance.Percent `json:"first_warn" yaml:"first_warn"`
	SecondWarn        finance.Percent `json:"second_warn" yaml:"second_warn"`
	ThirdWarn         finance.Percent `json:"third_warn" yaml:"third_warn"`
	Max               finance.Percent `json:"max" yaml:"max"`
	RecalculationTime time.Duration   `json:"recalculation_time" yaml:"recalculation_time"`
}

// New builds a validated ladder
func New(initial, healthy, first, second, third, maximum finance.Percent, recalc time.Duration) (Liability, error) {
	l := Liability{
		Initial:           initial,
		Healthy:           healthy,
		FirstWarn:         first,
		SecondWarn:        second,
		ThirdWarn:         third,
		Max:               maximum,
		RecalculationTime: recalc,
	}
	if err := l.Validate(); err != nil {
		return Liability{}, err
	}
	return l, nil
}

// Validate checks initial <= healthy < first < second < third <= max < 100%
func (l Liability) Validate() error {
	switch {
	case l.Initial > l.Healthy:
		return l.broken("initial %s above healthy %s", l.Initial, l.Healthy)
	case l.Healthy >= l.FirstWarn:
		return l.broken("healthy %s not below first warning %s", l.Healthy, l.FirstWarn)
	case l.FirstWarn >= l.SecondWarn:
		return l.broken("first warning %s not below second %s", l.FirstWarn, l.SecondWarn)
	case l.SecondWarn >= l.ThirdWarn:
		return l.broken("second warning %s not below third %s", l.SecondWarn, l.ThirdWarn)
	case l.ThirdWarn > l.Max:
		return l.broken("third warning %s above max %s", l.ThirdWarn, l.Max)
	case l.Max >= finance.Hundred:
		return l.broken("max %s must stay below %s", l.Max, finance.Hundred)
	case l.RecalculationTime <= 0:
		return l.broken("recalculation time %s must be positive", l.RecalculationTime)
	}
	return nil
}

func (l Liability) broken(format string, args ...interface{}) error {
	return fmt.Errorf("liability: "+format+": %w", append(args, apperrors.ErrBrokenInvariant)...)
}

// Threshold returns the ratio at which the given level starts
func (l Liability) Threshold(level Level) finance.Percent {
	switch level {
	case LevelFirst:
		return l.FirstWarn
	case LevelSecond:
		return l.SecondWarn
	case LevelThird:
		return l.ThirdWarn
	case LevelMax:
		return l.Max
	default:
		return l.Healthy
	}
}

// Classify places totalDue/value on the ladder. Each zone includes its lower
// bound, so a ratio equal to a threshold belongs to the zone above it.
// A worthless position with debt is at LevelMax.
func (l Liability) Classify(totalDue, value finance.Coin) (Level, error) {
	if !totalDue.SameCurrency(value) {
		return 0, fmt.Errorf("classify %s against %s: %w", totalDue, value, apperrors.ErrCurrencyMismatch)
	}
	if totalDue.IsZero() {
		return LevelHealthy, nil
	}
	if value.IsZero() {
		return LevelMax, nil
	}
	debt := new(big.Int).Mul(totalDue.BigInt(), big.NewInt(int64(finance.Hundred)))
	level := LevelHealthy
	for _, lv := range []Level{LevelFirst, LevelSecond, LevelThird, LevelMax} {
		bound := new(big.Int).Mul(value.BigInt(), big.NewInt(int64(l.Threshold(lv).Units())))
		if debt.Cmp(bound) < 0 {
			break
		}
		level = lv
	}
	return level, nil
}

// Ratio is floor(totalDue/value), for reporting
func (l Liability) Ratio(totalDue, value finance.Coin) (finance.Percent, error) {
	if value.IsZero() {
		return finance.Hundred, nil
	}
	return finance.Ratio(totalDue, value)
}

// AmountToLiquidate returns the smallest value whose sale, with the proceeds
// repaying debt, brings the ratio back to Healthy:
// ceil((totalDue - healthy*value) / (1 - healthy)).
func (l Liability) AmountToLiquidate(totalDue, value finance.Coin) (finance.Coin, error) {
	if !totalDue.SameCurrency(value) {
		return finance.Coin{}, fmt.Errorf("size %s against %s: %w", totalDue, value, apperrors.ErrCurrencyMismatch)
	}
	hundred := big.NewInt(int64(finance.Hundred))
	healthy := big.NewInt(int64(l.Healthy.Units()))

	num := new(big.Int).Mul(totalDue.BigInt(), hundred)
	num.Sub(num, new(big.Int).Mul(value.BigInt(), healthy))
	if num.Sign() <= 0 {
		return finance.ZeroCoin(totalDue.Ticker()), nil
	}
	den := new(big.Int).Sub(hundred, healthy)
	return finance.NewCoin(1, totalDue.Ticker()).MulDivCeil(num, den)
}
