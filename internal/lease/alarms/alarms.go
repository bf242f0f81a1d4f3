// Package alarms computes the time and price alarms a lease needs after each change.
package alarms

import (
	"fmt"
	"time"

	"lease_engine/internal/lease/liability"
	"lease_engine/internal/lease/liquidation"
	"lease_engine/internal/lease/loan"
	"lease_engine/internal/lease/position"
	"lease_engine/pkg/finance"
)

// PriceAlarm fires when the spot price drops to Below or rises above Above
type PriceAlarm struct {
	Below finance.Price  `json:"below"`
	Above *finance.Price `json:"above,omitempty"`
}

// Triggered reports whether spot falls outside the bracket
func (a PriceAlarm) Triggered(spot finance.Price) bool {
	if spot.Cmp(a.Below) <= 0 {
		return true
	}
	return a.Above != nil && spot.Cmp(*a.Above) > 0
}

// Batch is the full set of alarms to request; it supersedes any earlier batch
type Batch struct {
	Time  *time.Time  `json:"time,omitempty"`
	Price *PriceAlarm `json:"price,omitempty"`
}

func (b Batch) Empty() bool { return b.Time == nil && b.Price == nil }

// Schedule returns the alarms for a lease whose last evaluation at now gave status
func Schedule(now time.Time, status liquidation.Status, l loan.Loan, pos position.Position) (Batch, error) {
	if status.Kind == liquidation.KindNoDebt || status.Kind == liquidation.KindFull {
		return Batch{}, nil
	}

	at, err := timeAlarm(now, l, pos)
	if err != nil {
		return Batch{}, fmt.Errorf("time alarm: %w", err)
	}
	batch := Batch{Time: &at}

	if pos.Asset.Ticker() == pos.Spec.Lpn() {
		return batch, nil
	}
	below, above, ok := bracket(status)
	if !ok {
		return batch, nil
	}
	alarm, err := priceAlarm(now, l, pos, below, above)
	if err != nil {
		return Batch{}, fmt.Errorf("price alarm: %w", err)
	}
	batch.Price = &alarm
	return batch, nil
}

// timeAlarm is the earliest of the next recalculation, the grace period end
// and, once the grace period is over, the moment overdue interest becomes collectible.
func timeAlarm(now time.Time, l loan.Loan, pos position.Position) (time.Time, error) {
	at := now.Add(pos.Spec.Liability.RecalculationTime)

	grace := l.GracePeriodEnd()
	if grace.After(now) {
		if grace.Before(at) {
			at = grace
		}
		return at, nil
	}

	st, err := l.State(now)
	if err != nil {
		return time.Time{}, err
	}
	c, err := st.OverdueCollection(pos.Spec.MinTransaction)
	if err != nil {
		return time.Time{}, err
	}
	if c.StartIn > 0 && c.StartIn != loan.Forever {
		if hint := now.Add(c.StartIn); hint.Before(at) {
			at = hint
		}
	}
	return at, nil
}

// bracket picks the ladder levels guarding the current zone
func bracket(status liquidation.Status) (below liability.Level, above *liability.Level, ok bool) {
	switch status.Kind {
	case liquidation.KindNoWarning, liquidation.KindPartial:
		return liability.LevelFirst, nil, true
	case liquidation.KindWarning:
		current := status.Level
		return current + 1, &current, true
	default:
		return 0, nil, false
	}
}

func priceAlarm(now time.Time, l loan.Loan, pos position.Position, below liability.Level, above *liability.Level) (PriceAlarm, error) {
	st, err := l.State(now.Add(pos.Spec.Liability.RecalculationTime))
	if err != nil {
		return PriceAlarm{}, err
	}
	totalDue, err := st.TotalDue()
	if err != nil {
		return PriceAlarm{}, err
	}

	var alarm PriceAlarm
	if alarm.Below, err = thresholdPrice(totalDue, pos, below); err != nil {
		return PriceAlarm{}, err
	}
	if above != nil {
		p, err := thresholdPrice(totalDue, pos, *above)
		if err != nil {
			return PriceAlarm{}, err
		}
		alarm.Above = &p
	}
	return alarm, nil
}

// thresholdPrice is the asset price at which totalDue / (asset * price) hits the level's threshold
func thresholdPrice(totalDue finance.Coin, pos position.Position, level liability.Level) (finance.Price, error) {
	t := pos.Spec.Liability.Threshold(level)
	amount, err := pos.Asset.MulUint(uint64(t.Units()))
	if err != nil {
		return finance.Price{}, err
	}
	quote, err := totalDue.MulUint(uint64(finance.Hundred))
	if err != nil {
		return finance.Price{}, err
	}
	return finance.NewPrice(amount, quote)
}
