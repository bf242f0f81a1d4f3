package finance

import (
	"fmt"
	"math/big"

	apperrors "lease_engine/pkg/errors"

	"github.com/shopspring/decimal"
)

// maxAmount is the largest representable amount, 2^128 - 1.
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// mulDiv computes a*b/c over integers, rounding toward zero or up.
func mulDiv(a, b, c *big.Int, roundUp bool) (*big.Int, error) {
	if c.Sign() == 0 {
		return nil, fmt.Errorf("division by zero: %w", apperrors.ErrBrokenInvariant)
	}
	prod := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(prod, c, new(big.Int))
	if roundUp && r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

func checkedAmount(v *big.Int) (decimal.Decimal, error) {
	if v.Sign() < 0 {
		return decimal.Zero, apperrors.ErrUnderflow
	}
	if v.Cmp(maxAmount) > 0 {
		return decimal.Zero, apperrors.ErrOverflow
	}
	return decimal.NewFromBigInt(v, 0), nil
}

func bigOf(d decimal.Decimal) *big.Int {
	return d.BigInt()
}

func bigOfUint(u uint64) *big.Int {
	return new(big.Int).SetUint64(u)
}
