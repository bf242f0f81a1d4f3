// Package liquidation decides whether a lease needs part or all of its asset sold.
package liquidation

import (
	"fmt"
	"time"

	"lease_engine/internal/lease/liability"
	"lease_engine/internal/lease/loan"
	"lease_engine/internal/lease/position"
	"lease_engine/pkg/finance"
)

// Evaluate classifies the lease at now under price. It has no side effects:
// the same inputs always produce the same Status.
func Evaluate(now time.Time, price finance.Price, state loan.State, pos position.Position) (Status, error) {
	totalDue, err := state.TotalDue()
	if err != nil {
		return Status{}, fmt.Errorf("total due: %w", err)
	}
	if totalDue.IsZero() {
		return NoDebt(), nil
	}

	value, err := pos.Value(price)
	if err != nil {
		return Status{}, err
	}
	ladder := pos.Spec.Liability
	level, err := ladder.Classify(totalDue, value)
	if err != nil {
		return Status{}, err
	}

	amount := finance.ZeroCoin(totalDue.Ticker())
	cause := CauseLiability
	if level == liability.LevelMax {
		if amount, err = ladder.AmountToLiquidate(totalDue, value); err != nil {
			return Status{}, fmt.Errorf("liquidation amount: %w", err)
		}
	}

	overdue, err := overdueAmount(now, state, pos.Spec.MinTransaction)
	if err != nil {
		return Status{}, err
	}
	if overdue.Cmp(amount) > 0 {
		amount, cause = overdue, CauseOverdue
	}

	if amount.IsZero() {
		if level == liability.LevelHealthy {
			return NoWarning(), nil
		}
		return Warning(level), nil
	}
	return size(amount, cause, value, price, pos)
}

// overdueAmount is the interest to collect by force, zero while the grace period runs
func overdueAmount(now time.Time, state loan.State, minTransaction finance.Coin) (finance.Coin, error) {
	none := finance.ZeroCoin(minTransaction.Ticker())
	if now.Before(state.GracePeriodEnd) || !state.Overdue.Accrued() {
		return none, nil
	}
	c, err := state.OverdueCollection(minTransaction)
	if err != nil {
		return finance.Coin{}, fmt.Errorf("overdue collection: %w", err)
	}
	if !c.Collectible() {
		return none, nil
	}
	return c.Amount, nil
}

// size turns an LPN amount into a sell instruction, escalating to a full
// liquidation when the remainder would be worth less than MinAsset.
func size(amount finance.Coin, cause Cause, value finance.Coin, price finance.Price, pos position.Position) (Status, error) {
	amount, err := amount.Max(pos.Spec.MinTransaction)
	if err != nil {
		return Status{}, err
	}
	if amount.Cmp(value) >= 0 {
		return Full(pos.Asset, cause), nil
	}
	rest, err := value.Sub(amount)
	if err != nil {
		return Status{}, err
	}
	if rest.Cmp(pos.Spec.MinAsset) < 0 {
		return Full(pos.Asset, cause), nil
	}

	sell, err := price.Required(amount)
	if err != nil {
		return Status{}, err
	}
	if sell.Cmp(pos.Asset) >= 0 {
		return Full(pos.Asset, cause), nil
	}
	return Partial(sell, cause), nil
}
