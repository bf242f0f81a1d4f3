// Package finance provides the fixed-point money primitives used by the lease core:
// currency-tagged coins, permille percentages and exact prices.
package finance

import (
	"encoding/json"
	"fmt"
	"math/big"

	apperrors "lease_engine/pkg/errors"

	"github.com/shopspring/decimal"
)

// Ticker identifies a currency
type Ticker string

// Coin is a non-negative integer amount of a currency's smallest unit
type Coin struct {
	amount decimal.Decimal
	ticker Ticker
}

// NewCoin creates a coin from a unit count
func NewCoin(units uint64, ticker Ticker) Coin {
	return Coin{amount: decimal.NewFromBigInt(bigOfUint(units), 0), ticker: ticker}
}

// ZeroCoin returns an empty coin of the given currency
func ZeroCoin(ticker Ticker) Coin {
	return Coin{amount: decimal.Zero, ticker: ticker}
}

// CoinFromDecimal validates d as a coin amount: integral, non-negative and within bounds
func CoinFromDecimal(d decimal.Decimal, ticker Ticker) (Coin, error) {
	if !d.Equal(d.Truncate(0)) {
		return Coin{}, fmt.Errorf("fractional amount %s %s: %w", d, ticker, apperrors.ErrBrokenInvariant)
	}
	amount, err := checkedAmount(d.BigInt())
	if err != nil {
		return Coin{}, fmt.Errorf("amount %s %s: %w", d, ticker, err)
	}
	return Coin{amount: amount, ticker: ticker}, nil
}

// ParseCoin parses a unit count such as "1500000"
func ParseCoin(s string, ticker Ticker) (Coin, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Coin{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return CoinFromDecimal(d, ticker)
}

func coinFromBig(v *big.Int, ticker Ticker) (Coin, error) {
	amount, err := checkedAmount(v)
	if err != nil {
		return Coin{}, fmt.Errorf("%s: %w", ticker, err)
	}
	return Coin{amount: amount, ticker: ticker}, nil
}

func (c Coin) Amount() decimal.Decimal { return c.amount }
func (c Coin) Ticker() Ticker          { return c.ticker }
func (c Coin) IsZero() bool            { return c.amount.IsZero() }

// Cmp compares the amounts only. The caller must ensure both coins carry
// the same currency; use Compare when that is not known.
func (c Coin) Cmp(o Coin) int {
	return c.amount.Cmp(o.amount)
}

// Compare is Cmp failing with ErrCurrencyMismatch for coins of different currencies
func (c Coin) Compare(o Coin) (int, error) {
	if err := c.checkCurrency(o); err != nil {
		return 0, err
	}
	return c.amount.Cmp(o.amount), nil
}

// SameCurrency reports whether both coins carry the same ticker
func (c Coin) SameCurrency(o Coin) bool {
	return c.ticker == o.ticker
}

func (c Coin) checkCurrency(o Coin) error {
	if c.ticker != o.ticker {
		return fmt.Errorf("%s vs %s: %w", c.ticker, o.ticker, apperrors.ErrCurrencyMismatch)
	}
	return nil
}

// Add returns c+o
func (c Coin) Add(o Coin) (Coin, error) {
	if err := c.checkCurrency(o); err != nil {
		return Coin{}, err
	}
	return coinFromBig(new(big.Int).Add(bigOf(c.amount), bigOf(o.amount)), c.ticker)
}

// Sub returns c-o, failing with ErrUnderflow if o > c
func (c Coin) Sub(o Coin) (Coin, error) {
	if err := c.checkCurrency(o); err != nil {
		return Coin{}, err
	}
	return coinFromBig(new(big.Int).Sub(bigOf(c.amount), bigOf(o.amount)), c.ticker)
}

// SaturatingSub returns max(c-o, 0)
func (c Coin) SaturatingSub(o Coin) (Coin, error) {
	if err := c.checkCurrency(o); err != nil {
		return Coin{}, err
	}
	if c.amount.LessThanOrEqual(o.amount) {
		return ZeroCoin(c.ticker), nil
	}
	return Coin{amount: c.amount.Sub(o.amount), ticker: c.ticker}, nil
}

// Min returns the smaller of two coins of the same currency
func (c Coin) Min(o Coin) (Coin, error) {
	if err := c.checkCurrency(o); err != nil {
		return Coin{}, err
	}
	if o.amount.LessThan(c.amount) {
		return o, nil
	}
	return c, nil
}

// Max returns the larger of two coins of the same currency
func (c Coin) Max(o Coin) (Coin, error) {
	if err := c.checkCurrency(o); err != nil {
		return Coin{}, err
	}
	if o.amount.GreaterThan(c.amount) {
		return o, nil
	}
	return c, nil
}

// MulUint returns c*n
func (c Coin) MulUint(n uint64) (Coin, error) {
	return coinFromBig(new(big.Int).Mul(bigOf(c.amount), bigOfUint(n)), c.ticker)
}

// MulDivFloor returns floor(c*num/den)
func (c Coin) MulDivFloor(num, den *big.Int) (Coin, error) {
	v, err := mulDiv(bigOf(c.amount), num, den, false)
	if err != nil {
		return Coin{}, err
	}
	return coinFromBig(v, c.ticker)
}

// MulDivCeil returns ceil(c*num/den)
func (c Coin) MulDivCeil(num, den *big.Int) (Coin, error) {
	v, err := mulDiv(bigOf(c.amount), num, den, true)
	if err != nil {
		return Coin{}, err
	}
	return coinFromBig(v, c.ticker)
}

// BigInt returns the amount as a new big.Int
func (c Coin) BigInt() *big.Int {
	return bigOf(c.amount)
}

func (c Coin) String() string {
	return c.amount.String() + " " + string(c.ticker)
}

type coinJSON struct {
	Amount string `json:"amount"`
	Ticker Ticker `json:"ticker"`
}

func (c Coin) MarshalJSON() ([]byte, error) {
	return json.Marshal(coinJSON{Amount: c.amount.String(), Ticker: c.ticker})
}

func (c *Coin) UnmarshalJSON(data []byte) error {
	var raw coinJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseCoin(raw.Amount, raw.Ticker)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
