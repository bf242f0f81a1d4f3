// Package position couples the leased asset with the limits it is managed under.
package position

import (
	"fmt"

	"lease_engine/internal/lease/liability"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
)

// Spec is the policy a position is evaluated against
type Spec struct {
	Liability      liability.Liability `json:"liability"`
	MinAsset       finance.Coin        `json:"min_asset"`
	MinTransaction finance.Coin        `json:"min_transaction"`
}

// NewSpec validates the ladder and the minimum amounts
func NewSpec(l liability.Liability, minAsset, minTransaction finance.Coin) (Spec, error) {
	s := Spec{Liability: l, MinAsset: minAsset, MinTransaction: minTransaction}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

func (s Spec) Validate() error {
	if err := s.Liability.Validate(); err != nil {
		return err
	}
	if s.MinAsset.IsZero() || s.MinTransaction.IsZero() {
		return fmt.Errorf("min asset %s and min transaction %s must be positive: %w",
			s.MinAsset, s.MinTransaction, apperrors.ErrBrokenInvariant)
	}
	if !s.MinAsset.SameCurrency(s.MinTransaction) {
		return fmt.Errorf("min asset %s and min transaction %s: %w",
			s.MinAsset, s.MinTransaction, apperrors.ErrCurrencyMismatch)
	}
	return nil
}

// Lpn is the currency the limits are expressed in
func (s Spec) Lpn() finance.Ticker {
	return s.MinAsset.Ticker()
}

// Position is the collateral held by a lease
type Position struct {
	Asset finance.Coin `json:"asset"`
	Spec  Spec         `json:"spec"`
}

// New creates a position after checking the spec
func New(asset finance.Coin, spec Spec) (Position, error) {
	if err := spec.Validate(); err != nil {
		return Position{}, err
	}
	return Position{Asset: asset, Spec: spec}, nil
}

// Value converts the asset into LPN at price
func (p Position) Value(price finance.Price) (finance.Coin, error) {
	if price.Base() != p.Asset.Ticker() || price.Quote() != p.Spec.Lpn() {
		return finance.Coin{}, fmt.Errorf("price %s for %s position: %w", price, p.Asset.Ticker(), apperrors.ErrCurrencyMismatch)
	}
	return price.Total(p.Asset)
}

// Sell removes a sold amount from the asset
func (p *Position) Sell(amount finance.Coin) error {
	rest, err := p.Asset.Sub(amount)
	if err != nil {
		return fmt.Errorf("sell %s of %s: %w", amount, p.Asset, err)
	}
	p.Asset = rest
	return nil
}
