package finance

import (
	"fmt"
	"sort"

	apperrors "lease_engine/pkg/errors"

	"github.com/shopspring/decimal"
)

// Group classifies how a currency may be used by a lease
type Group string

const (
	GroupLpn    Group = "lpn"
	GroupLease  Group = "lease"
	GroupNative Group = "native"
)

// Currency describes a supported currency
type Currency struct {
	Ticker   Ticker
	Decimals int32
	Dust     uint64 // smallest accepted payment, in units
	Group    Group
}

// DustCoin returns the dust threshold as a coin
func (c Currency) DustCoin() Coin {
	return NewCoin(c.Dust, c.Ticker)
}

// Units converts a human-readable amount such as "12.5" into a coin
func (c Currency) Units(s string) (Coin, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Coin{}, fmt.Errorf("invalid %s amount %q: %w", c.Ticker, s, err)
	}
	return CoinFromDecimal(d.Shift(c.Decimals), c.Ticker)
}

// Registry is the closed table of currencies the lease core accepts
type Registry struct {
	byTicker map[Ticker]Currency
	lpn      Ticker
}

// NewRegistry builds a registry; exactly the lpn ticker must be in the lpn group
func NewRegistry(lpn Ticker, currencies ...Currency) (*Registry, error) {
	r := &Registry{
		byTicker: make(map[Ticker]Currency, len(currencies)),
		lpn:      lpn,
	}
	for _, c := range currencies {
		if c.Ticker == "" {
			return nil, fmt.Errorf("currency without ticker: %w", apperrors.ErrBrokenInvariant)
		}
		if _, dup := r.byTicker[c.Ticker]; dup {
			return nil, fmt.Errorf("duplicate currency %s: %w", c.Ticker, apperrors.ErrBrokenInvariant)
		}
		if c.Group == GroupLpn && c.Ticker != lpn {
			return nil, fmt.Errorf("%s is not the configured lpn %s: %w", c.Ticker, lpn, apperrors.ErrBrokenInvariant)
		}
		r.byTicker[c.Ticker] = c
	}
	l, ok := r.byTicker[lpn]
	if !ok || l.Group != GroupLpn {
		return nil, fmt.Errorf("lpn %s missing from lpn group: %w", lpn, apperrors.ErrBrokenInvariant)
	}
	return r, nil
}

// Get looks up a currency by ticker
func (r *Registry) Get(ticker Ticker) (Currency, error) {
	c, ok := r.byTicker[ticker]
	if !ok {
		return Currency{}, fmt.Errorf("%s: %w", ticker, apperrors.ErrUnknownCurrency)
	}
	return c, nil
}

// Lpn returns the lending pool currency
func (r *Registry) Lpn() Currency {
	return r.byTicker[r.lpn]
}

// IsLpn reports whether ticker is the lending pool currency
func (r *Registry) IsLpn(ticker Ticker) bool {
	return ticker == r.lpn
}

// Leasable reports whether ticker can be held as lease collateral
func (r *Registry) Leasable(ticker Ticker) bool {
	c, ok := r.byTicker[ticker]
	return ok && (c.Group == GroupLease || c.Group == GroupLpn)
}

// Tickers lists all registered tickers in sorted order
func (r *Registry) Tickers() []Ticker {
	out := make([]Ticker, 0, len(r.byTicker))
	for t := range r.byTicker {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
