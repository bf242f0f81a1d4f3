package loan

import (
	"fmt"
	"time"

	"lease_engine/pkg/finance"
)

// Overdue is either a countdown to the moment interest turns overdue
// or the interest that already is.
type Overdue struct {
	StartIn  time.Duration `json:"start_in"`
	Interest finance.Coin  `json:"interest"`
	Margin   finance.Coin  `json:"margin"`
}

// OverdueIn is the bucket of a loan with nothing overdue yet
func OverdueIn(d time.Duration, lpn finance.Ticker) Overdue {
	return Overdue{StartIn: d, Interest: finance.ZeroCoin(lpn), Margin: finance.ZeroCoin(lpn)}
}

// OverdueAccrued is the bucket of a loan with interest past its due period
func OverdueAccrued(interest, margin finance.Coin) Overdue {
	return Overdue{Interest: interest, Margin: margin}
}

func (o Overdue) Accrued() bool { return o.StartIn <= 0 }

func (o Overdue) Total() (finance.Coin, error) {
	return o.Interest.Add(o.Margin)
}

// State is a loan's debt as seen at one instant
type State struct {
	PrincipalDue      finance.Coin    `json:"principal_due"`
	AnnualInterest    finance.Percent `json:"annual_interest"`
	AnnualMargin      finance.Percent `json:"annual_margin"`
	DueInterest       finance.Coin    `json:"due_interest"`
	DueMarginInterest finance.Coin    `json:"due_margin_interest"`
	Overdue           Overdue         `json:"overdue"`
	GracePeriodEnd    time.Time       `json:"grace_period_end"`
}

// Collection is the due/overdue calculator's verdict
type Collection struct {
	StartIn time.Duration `json:"start_in"`
	Amount  finance.Coin  `json:"amount"`
}

// Collectible reports whether the amount may be collected now
func (c Collection) Collectible() bool { return c.StartIn == 0 && !c.Amount.IsZero() }

// State splits the interest owed at now into the current due period and the overdue bucket
func (l Loan) State(now time.Time) (State, error) {
	cutoff := now.Add(-l.DuePeriod)

	overdueInterest, dueInterest, err := l.split(l.AnnualInterest, l.InterestPaid, cutoff, now)
	if err != nil {
		return State{}, fmt.Errorf("interest: %w", err)
	}
	overdueMargin, dueMargin, err := l.split(l.AnnualMargin, l.MarginPaid, cutoff, now)
	if err != nil {
		return State{}, fmt.Errorf("margin: %w", err)
	}

	var overdue Overdue
	oldest := l.InterestPaid
	if l.MarginPaid.Before(oldest) {
		oldest = l.MarginPaid
	}
	if oldest.After(cutoff) {
		overdue = OverdueIn(oldest.Sub(cutoff), l.Principal.Ticker())
	} else {
		overdue = OverdueAccrued(overdueInterest, overdueMargin)
	}

	return State{
		PrincipalDue:      l.Principal,
		AnnualInterest:    l.AnnualInterest,
		AnnualMargin:      l.AnnualMargin,
		DueInterest:       dueInterest,
		DueMarginInterest: dueMargin,
		Overdue:           overdue,
		GracePeriodEnd:    l.GracePeriodEnd(),
	}, nil
}

// split returns the interest accrued before cutoff and between cutoff and now
func (l Loan) split(rate finance.Percent, paid, cutoff, now time.Time) (overdue, due finance.Coin, err error) {
	dueFrom := paid
	if cutoff.After(paid) {
		if overdue, err = accrued(l.Principal, rate, paid, cutoff); err != nil {
			return
		}
		dueFrom = cutoff
	} else {
		overdue = finance.ZeroCoin(l.Principal.Ticker())
	}
	due, err = accrued(l.Principal, rate, dueFrom, now)
	return
}

// TotalDueInterest sums the current and overdue interest and margin
func (s State) TotalDueInterest() (finance.Coin, error) {
	total, err := s.DueInterest.Add(s.DueMarginInterest)
	if err != nil {
		return finance.Coin{}, err
	}
	overdue, err := s.Overdue.Total()
	if err != nil {
		return finance.Coin{}, err
	}
	return total.Add(overdue)
}

// TotalDue is the principal plus all interest owed
func (s State) TotalDue() (finance.Coin, error) {
	interest, err := s.TotalDueInterest()
	if err != nil {
		return finance.Coin{}, err
	}
	return s.PrincipalDue.Add(interest)
}

// OverdueCollection decides when the unpaid interest reaches minAmount.
// A collectible result carries StartIn 0 and the full amount; otherwise
// Amount is zero and StartIn tells how long until it is worth collecting.
func (s State) OverdueCollection(minAmount finance.Coin) (Collection, error) {
	total, err := s.TotalDueInterest()
	if err != nil {
		return Collection{}, err
	}
	if total.Cmp(minAmount) >= 0 {
		return Collection{StartIn: 0, Amount: total}, nil
	}

	shortfall, err := minAmount.Sub(total)
	if err != nil {
		return Collection{}, err
	}
	rate, err := s.AnnualInterest.Add(s.AnnualMargin)
	if err != nil {
		return Collection{}, err
	}
	startIn := accrualTime(s.PrincipalDue, rate, shortfall)
	if s.Overdue.StartIn > startIn {
		startIn = s.Overdue.StartIn
	}
	return Collection{StartIn: startIn, Amount: finance.ZeroCoin(total.Ticker())}, nil
}
