package finance

import (
	"encoding/json"
	"fmt"
	"math/big"

	apperrors "lease_engine/pkg/errors"

	"github.com/shopspring/decimal"
)

// Price is an exact exchange rate: amount of the base currency is worth quote.
type Price struct {
	amount Coin
	quote  Coin
}

// NewPrice creates a price where amount is worth quote. Both must be positive.
func NewPrice(amount, quote Coin) (Price, error) {
	if amount.IsZero() || quote.IsZero() {
		return Price{}, fmt.Errorf("price %s/%s must be positive: %w", quote, amount, apperrors.ErrBrokenInvariant)
	}
	return Price{amount: amount, quote: quote}, nil
}

// Identity returns the 1:1 price of a currency against itself
func Identity(ticker Ticker) Price {
	one := NewCoin(1, ticker)
	return Price{amount: one, quote: one}
}

// PriceFromDecimal converts a quote for one whole base unit, such as
// "9.85 USDC per ATOM", into an exact price between smallest units.
func PriceFromDecimal(base, quote Currency, d decimal.Decimal) (Price, error) {
	if !d.IsPositive() {
		return Price{}, fmt.Errorf("price %s %s/%s must be positive: %w", d, quote.Ticker, base.Ticker, apperrors.ErrBrokenInvariant)
	}
	q := d.Shift(quote.Decimals)
	b := decimal.New(1, base.Decimals)
	if exp := q.Exponent(); exp < 0 {
		q, b = q.Shift(-exp), b.Shift(-exp)
	}
	amount, err := CoinFromDecimal(b, base.Ticker)
	if err != nil {
		return Price{}, err
	}
	total, err := CoinFromDecimal(q, quote.Ticker)
	if err != nil {
		return Price{}, err
	}
	return NewPrice(amount, total)
}

func (p Price) Base() Ticker      { return p.amount.ticker }
func (p Price) Quote() Ticker     { return p.quote.ticker }
func (p Price) BaseAmount() Coin  { return p.amount }
func (p Price) QuoteAmount() Coin { return p.quote }
func (p Price) IsIdentity() bool  { return p.Base() == p.Quote() }
func (p Price) IsZero() bool      { return p.amount.IsZero() }

// Total converts an amount of the base currency into the quote currency, rounding down
func (p Price) Total(c Coin) (Coin, error) {
	if c.ticker != p.Base() {
		return Coin{}, fmt.Errorf("convert %s with %s: %w", c, p, apperrors.ErrCurrencyMismatch)
	}
	v, err := mulDiv(c.BigInt(), p.quote.BigInt(), p.amount.BigInt(), false)
	if err != nil {
		return Coin{}, err
	}
	return coinFromBig(v, p.Quote())
}

// Required returns the smallest base amount whose value covers q
func (p Price) Required(q Coin) (Coin, error) {
	if q.ticker != p.Quote() {
		return Coin{}, fmt.Errorf("cover %s with %s: %w", q, p, apperrors.ErrCurrencyMismatch)
	}
	v, err := mulDiv(q.BigInt(), p.amount.BigInt(), p.quote.BigInt(), true)
	if err != nil {
		return Coin{}, err
	}
	return coinFromBig(v, p.Base())
}

// Cmp compares two prices of the same pair
func (p Price) Cmp(o Price) int {
	left := new(big.Int).Mul(p.quote.BigInt(), o.amount.BigInt())
	right := new(big.Int).Mul(o.quote.BigInt(), p.amount.BigInt())
	return left.Cmp(right)
}

func (p Price) String() string {
	return fmt.Sprintf("%s/%s", p.quote, p.amount)
}

type priceJSON struct {
	Amount Coin `json:"amount"`
	Quote  Coin `json:"amount_quote"`
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(priceJSON{Amount: p.amount, Quote: p.quote})
}

func (p *Price) UnmarshalJSON(data []byte) error {
	var raw priceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewPrice(raw.Amount, raw.Quote)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
