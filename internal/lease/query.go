package lease

import (
	"time"

	"lease_engine/internal/core"
	"lease_engine/internal/lease/loan"
	"lease_engine/pkg/finance"
)

// StateView is a read-only snapshot of a lease at one instant
type StateView struct {
	ID                string                 `json:"id"`
	Customer          string                 `json:"customer"`
	Asset             finance.Coin           `json:"asset"`
	PrincipalDue      finance.Coin           `json:"principal_due"`
	DueInterest       finance.Coin           `json:"due_interest"`
	DueMarginInterest finance.Coin           `json:"due_margin_interest"`
	Overdue           loan.Overdue           `json:"overdue"`
	TotalDue          finance.Coin           `json:"total_due"`
	GracePeriodEnd    time.Time              `json:"grace_period_end"`
	NextCollection    loan.Collection        `json:"next_collection"`
	InFlight          *core.LiquidationOrder `json:"in_flight,omitempty"`
	Closed            bool                   `json:"closed"`
}

// QueryState reports the debt as of now without changing anything or touching prices
func (l *Lease) QueryState(now time.Time) (StateView, error) {
	st, err := l.Loan.State(now)
	if err != nil {
		return StateView{}, err
	}
	total, err := st.TotalDue()
	if err != nil {
		return StateView{}, err
	}
	next, err := st.OverdueCollection(l.Position.Spec.MinTransaction)
	if err != nil {
		return StateView{}, err
	}
	return StateView{
		ID:                l.ID,
		Customer:          l.Customer,
		Asset:             l.Position.Asset,
		PrincipalDue:      st.PrincipalDue,
		DueInterest:       st.DueInterest,
		DueMarginInterest: st.DueMarginInterest,
		Overdue:           st.Overdue,
		TotalDue:          total,
		GracePeriodEnd:    st.GracePeriodEnd,
		NextCollection:    next,
		InFlight:          l.InFlight,
		Closed:            l.Closed,
	}, nil
}
