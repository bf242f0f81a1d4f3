package loan

import (
	"fmt"
	"time"

	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
)

// Receipt itemizes how a payment was applied
type Receipt struct {
	OverdueMargin   finance.Coin `json:"overdue_margin"`
	OverdueInterest finance.Coin `json:"overdue_interest"`
	DueMargin       finance.Coin `json:"due_margin"`
	DueInterest     finance.Coin `json:"due_interest"`
	Principal       finance.Coin `json:"principal"`
	Excess          finance.Coin `json:"excess"`
	Close           bool         `json:"close"`
}

// Paid is the part of the payment kept by the loan
func (r Receipt) Paid() (finance.Coin, error) {
	total := r.OverdueMargin
	for _, c := range []finance.Coin{r.OverdueInterest, r.DueMargin, r.DueInterest, r.Principal} {
		var err error
		if total, err = total.Add(c); err != nil {
			return finance.Coin{}, err
		}
	}
	return total, nil
}

// Repay applies payment at by. Overdue margin is settled first, then overdue
// interest, due margin, due interest and finally the principal. Whatever is
// left over is returned as Receipt.Excess. A payment below dust is rejected
// and leaves the loan untouched, as does any other error.
func (l *Loan) Repay(by time.Time, payment, dust finance.Coin) (Receipt, error) {
	lpn := l.Principal.Ticker()
	if payment.Ticker() != lpn {
		return Receipt{}, fmt.Errorf("repay %s on a %s loan: %w", payment, lpn, apperrors.ErrCurrencyMismatch)
	}
	if below, err := payment.Compare(dust); err != nil {
		return Receipt{}, fmt.Errorf("dust %s: %w", dust, err)
	} else if below < 0 {
		return Receipt{}, fmt.Errorf("payment %s below %s: %w", payment, dust, apperrors.ErrInsufficientPayment)
	}

	st, err := l.State(by)
	if err != nil {
		return Receipt{}, err
	}
	cutoff := by.Add(-l.DuePeriod)
	next := *l
	rem := payment
	var receipt Receipt

	steps := []struct {
		owed   finance.Coin
		rate   finance.Percent
		clock  *time.Time
		from   time.Time
		target time.Time
		paid   *finance.Coin
	}{
		{st.Overdue.Margin, l.AnnualMargin, &next.MarginPaid, time.Time{}, cutoff, &receipt.OverdueMargin},
		{st.Overdue.Interest, l.AnnualInterest, &next.InterestPaid, time.Time{}, cutoff, &receipt.OverdueInterest},
		{st.DueMarginInterest, l.AnnualMargin, &next.MarginPaid, cutoff, by, &receipt.DueMargin},
		{st.DueInterest, l.AnnualInterest, &next.InterestPaid, cutoff, by, &receipt.DueInterest},
	}
	for _, s := range steps {
		// the current period is not reachable while the overdue one is open
		if s.clock.Before(s.from) {
			*s.paid = finance.ZeroCoin(lpn)
			continue
		}
		pay, err := rem.Min(s.owed)
		if err != nil {
			return Receipt{}, err
		}
		if rem, err = rem.Sub(pay); err != nil {
			return Receipt{}, err
		}
		*s.paid = pay
		if pay.Cmp(s.owed) == 0 {
			if s.clock.Before(s.target) {
				*s.clock = s.target
			}
			continue
		}
		*s.clock = s.clock.Add(settlement(l.Principal, s.rate, pay))
	}

	if receipt.Principal, err = rem.Min(l.Principal); err != nil {
		return Receipt{}, err
	}
	if next.Principal, err = l.Principal.Sub(receipt.Principal); err != nil {
		return Receipt{}, err
	}
	if receipt.Excess, err = rem.Sub(receipt.Principal); err != nil {
		return Receipt{}, err
	}
	receipt.Close = next.Principal.IsZero()

	*l = next
	return receipt, nil
}
