package finance

import (
	"fmt"
	"math"
	"math/big"

	apperrors "lease_engine/pkg/errors"

	"github.com/shopspring/decimal"
)

// Percent is a permille-resolution percentage; Hundred is 100%.
type Percent uint32

const (
	Zero    Percent = 0
	Hundred Percent = 1000
)

// Permille units per whole, as a big.Int for ratio arithmetic
var hundredBig = big.NewInt(int64(Hundred))

// FromPermille creates a percentage of p/1000
func FromPermille(p uint32) Percent {
	return Percent(p)
}

// FromPercent creates a percentage of p/100
func FromPercent(p uint32) Percent {
	return Percent(p * 10)
}

// Units returns the permille value
func (p Percent) Units() uint32 {
	return uint32(p)
}

func (p Percent) big() *big.Int {
	return bigOfUint(uint64(p))
}

// Of returns floor(c * p)
func (p Percent) Of(c Coin) (Coin, error) {
	return c.MulDivFloor(p.big(), hundredBig)
}

// Add returns p+o
func (p Percent) Add(o Percent) (Percent, error) {
	sum := uint64(p) + uint64(o)
	if sum > math.MaxUint32 {
		return 0, fmt.Errorf("%s + %s: %w", p, o, apperrors.ErrOverflow)
	}
	return Percent(sum), nil
}

// Sub returns p-o
func (p Percent) Sub(o Percent) (Percent, error) {
	if o > p {
		return 0, fmt.Errorf("%s - %s: %w", p, o, apperrors.ErrUnderflow)
	}
	return p - o, nil
}

// Complement returns 100% - p
func (p Percent) Complement() (Percent, error) {
	return Hundred.Sub(p)
}

// Ratio returns floor(part/whole) as a percentage. whole must be non-zero.
func Ratio(part, whole Coin) (Percent, error) {
	if err := part.checkCurrency(whole); err != nil {
		return 0, err
	}
	v, err := mulDiv(part.BigInt(), hundredBig, whole.BigInt(), false)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > math.MaxUint32 {
		return 0, fmt.Errorf("ratio %s/%s: %w", part, whole, apperrors.ErrOverflow)
	}
	return Percent(v.Uint64()), nil
}

func (p Percent) String() string {
	return decimal.New(int64(p), -1).String() + "%"
}
