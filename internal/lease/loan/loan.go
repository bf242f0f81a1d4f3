// Package loan keeps the principal and interest books of a lease loan.
//
// A loan stores two settlement clocks, one for the pool interest and one for
// the protocol margin. Everything else a caller needs (interest due within
// the current period, the overdue bucket, the grace deadline) is derived from
// the clocks and the principal by State, so there is no separate accrual step.
package loan

import (
	"fmt"
	"math"
	"math/big"
	"time"

	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
)

const (
	// Year is the interest accrual basis
	Year = 365 * 24 * time.Hour

	// Forever is returned where no finite horizon exists
	Forever = time.Duration(math.MaxInt64)
)

var yearPermille = new(big.Int).Mul(big.NewInt(int64(Year)), big.NewInt(int64(finance.Hundred)))

// Loan is the persisted ledger state
type Loan struct {
	Principal      finance.Coin    `json:"principal"`
	AnnualInterest finance.Percent `json:"annual_interest"`
	AnnualMargin   finance.Percent `json:"annual_margin"`
	InterestPaid   time.Time       `json:"interest_paid"`
	MarginPaid     time.Time       `json:"margin_paid"`
	DuePeriod      time.Duration   `json:"due_period"`
	GracePeriod    time.Duration   `json:"grace_period"`
}

// New opens a loan at start with both clocks settled
func New(principal finance.Coin, interest, margin finance.Percent, start time.Time, duePeriod, gracePeriod time.Duration) (Loan, error) {
	l := Loan{
		Principal:      principal,
		AnnualInterest: interest,
		AnnualMargin:   margin,
		InterestPaid:   start,
		MarginPaid:     start,
		DuePeriod:      duePeriod,
		GracePeriod:    gracePeriod,
	}
	if err := l.Validate(); err != nil {
		return Loan{}, err
	}
	return l, nil
}

// Validate checks the loan terms
func (l Loan) Validate() error {
	if l.Principal.Ticker() == "" {
		return fmt.Errorf("loan principal has no currency: %w", apperrors.ErrBrokenInvariant)
	}
	if l.DuePeriod <= 0 {
		return fmt.Errorf("due period %s must be positive: %w", l.DuePeriod, apperrors.ErrBrokenInvariant)
	}
	if l.GracePeriod < 0 {
		return fmt.Errorf("grace period %s must not be negative: %w", l.GracePeriod, apperrors.ErrBrokenInvariant)
	}
	return nil
}

// Closed reports whether the principal has been repaid in full
func (l Loan) Closed() bool {
	return l.Principal.IsZero()
}

// InterestDue returns the pool interest plus margin accrued and unpaid by the given instant
func (l Loan) InterestDue(by time.Time) (finance.Coin, error) {
	interest, err := accrued(l.Principal, l.AnnualInterest, l.InterestPaid, by)
	if err != nil {
		return finance.Coin{}, err
	}
	margin, err := accrued(l.Principal, l.AnnualMargin, l.MarginPaid, by)
	if err != nil {
		return finance.Coin{}, err
	}
	return interest.Add(margin)
}

// GracePeriodEnd is the instant after which overdue interest may be collected by force
func (l Loan) GracePeriodEnd() time.Time {
	oldest := l.InterestPaid
	if l.MarginPaid.Before(oldest) {
		oldest = l.MarginPaid
	}
	return oldest.Add(l.DuePeriod).Add(l.GracePeriod)
}

// accrued is floor(principal * rate * elapsed / year), elapsed clamped at zero
func accrued(principal finance.Coin, rate finance.Percent, from, to time.Time) (finance.Coin, error) {
	if !to.After(from) {
		return finance.ZeroCoin(principal.Ticker()), nil
	}
	elapsed := big.NewInt(int64(to.Sub(from)))
	num := new(big.Int).Mul(elapsed, big.NewInt(int64(rate.Units())))
	return principal.MulDivFloor(num, yearPermille)
}

// settlement returns the largest duration whose accrued interest does not exceed amount
func settlement(principal finance.Coin, rate finance.Percent, amount finance.Coin) time.Duration {
	den := new(big.Int).Mul(principal.BigInt(), big.NewInt(int64(rate.Units())))
	if den.Sign() == 0 {
		return 0
	}
	d := new(big.Int).Mul(amount.BigInt(), yearPermille)
	d.Quo(d, den)
	if !d.IsInt64() {
		return Forever
	}
	return time.Duration(d.Int64())
}

// accrualTime returns the shortest duration over which amount accrues, Forever if it never does
func accrualTime(principal finance.Coin, rate finance.Percent, amount finance.Coin) time.Duration {
	den := new(big.Int).Mul(principal.BigInt(), big.NewInt(int64(rate.Units())))
	if den.Sign() == 0 {
		return Forever
	}
	d := new(big.Int).Mul(amount.BigInt(), yearPermille)
	d, r := d.QuoRem(d, den, new(big.Int))
	if r.Sign() != 0 {
		d.Add(d, big.NewInt(1))
	}
	if !d.IsInt64() {
		return Forever
	}
	return time.Duration(d.Int64())
}
