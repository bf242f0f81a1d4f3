// Package lease is the orchestrator-facing facade of a single lease: it runs
// the ledger, the liquidation decision and the alarm scheduler for each
// inbound event and returns what the host must do next.
package lease

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"lease_engine/internal/core"
	"lease_engine/internal/lease/alarms"
	"lease_engine/internal/lease/liquidation"
	"lease_engine/internal/lease/loan"
	"lease_engine/internal/lease/position"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"

	"github.com/google/uuid"
)

// Lease is the persisted state of one leveraged position
type Lease struct {
	ID        string                 `json:"id"`
	Customer  string                 `json:"customer"`
	Loan      loan.Loan              `json:"loan"`
	Position  position.Position      `json:"position"`
	Dust      finance.Coin           `json:"dust"`
	InFlight  *core.LiquidationOrder `json:"in_flight,omitempty"`
	Closed    bool                   `json:"closed"`
	OpenedAt  time.Time              `json:"opened_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Response is the outcome of an event: the new status, the alarms to
// (re)schedule and at most one liquidation to hand to the swap service.
type Response struct {
	Status      liquidation.Status     `json:"status"`
	Alarms      alarms.Batch           `json:"alarms"`
	Liquidation *core.LiquidationOrder `json:"liquidation,omitempty"`
	Note        string                 `json:"note,omitempty"`
}

// Notes explaining a Response that carries no fresh evaluation
const (
	NoteClosed            = "lease_closed"
	NoteInFlight          = "liquidation_in_flight"
	NoteEvaluationPending = "evaluation_pending"
)

// RepayResponse adds the payment breakdown to a Response
type RepayResponse struct {
	LoanPaid bool         `json:"loan_paid"`
	Receipt  loan.Receipt `json:"receipt"`
	Response
}

// OpenRequest carries the terms of a new lease.
// Asset is the collateral bought with Downpayment plus Borrow.
type OpenRequest struct {
	ID             string
	Customer       string
	Downpayment    finance.Coin
	Borrow         finance.Coin
	Asset          finance.Coin
	AnnualInterest finance.Percent
	AnnualMargin   finance.Percent
	DuePeriod      time.Duration
	GracePeriod    time.Duration
	Spec           position.Spec
	Dust           finance.Coin
}

// Open creates a lease and evaluates it once. The borrowed share of the
// purchase may not exceed the initial liability.
func Open(ctx context.Context, now time.Time, req OpenRequest, prices core.IPriceSource) (*Lease, Response, error) {
	if err := req.Spec.Validate(); err != nil {
		return nil, Response{}, err
	}
	if req.Borrow.IsZero() || req.Asset.IsZero() {
		return nil, Response{}, fmt.Errorf("lease %s: borrow %s and asset %s must be positive: %w",
			req.ID, req.Borrow, req.Asset, apperrors.ErrBrokenInvariant)
	}
	total, err := req.Downpayment.Add(req.Borrow)
	if err != nil {
		return nil, Response{}, err
	}
	borrowed := new(big.Int).Mul(req.Borrow.BigInt(), big.NewInt(int64(finance.Hundred)))
	allowed := new(big.Int).Mul(total.BigInt(), big.NewInt(int64(req.Spec.Liability.Initial.Units())))
	if borrowed.Cmp(allowed) > 0 {
		return nil, Response{}, fmt.Errorf("lease %s: borrowing %s of %s exceeds initial liability %s: %w",
			req.ID, req.Borrow, total, req.Spec.Liability.Initial, apperrors.ErrBrokenInvariant)
	}

	l, err := loan.New(req.Borrow, req.AnnualInterest, req.AnnualMargin, now, req.DuePeriod, req.GracePeriod)
	if err != nil {
		return nil, Response{}, err
	}
	pos, err := position.New(req.Asset, req.Spec)
	if err != nil {
		return nil, Response{}, err
	}

	lease := &Lease{
		ID:       req.ID,
		Customer: req.Customer,
		Loan:     l,
		Position: pos,
		Dust:     req.Dust,
		OpenedAt: now,
	}
	resp, err := lease.OnTimeAlarm(ctx, now, prices)
	if err != nil {
		return nil, Response{}, err
	}
	return lease, resp, nil
}

// Lpn is the lending currency of the lease
func (l *Lease) Lpn() finance.Ticker {
	return l.Position.Spec.Lpn()
}

// OnTimeAlarm re-evaluates the lease. Alarms carry no payload; the status is
// always recomputed from the stored state, so late or repeated alarms are harmless.
func (l *Lease) OnTimeAlarm(ctx context.Context, now time.Time, prices core.IPriceSource) (Response, error) {
	if err := l.checkAlarm(); err != nil {
		return Response{}, err
	}
	next := *l
	resp, err := next.evaluate(ctx, now, prices)
	if err != nil {
		return Response{}, err
	}
	*l = next
	return resp, nil
}

// OnPriceAlarm re-evaluates the lease after the spot price left its bracket
func (l *Lease) OnPriceAlarm(ctx context.Context, now time.Time, prices core.IPriceSource) (Response, error) {
	return l.OnTimeAlarm(ctx, now, prices)
}

func (l *Lease) checkAlarm() error {
	if l.Closed {
		return fmt.Errorf("lease %s: %w", l.ID, apperrors.ErrLeaseClosed)
	}
	if l.InFlight != nil {
		return fmt.Errorf("lease %s order %s: %w", l.ID, l.InFlight.ID, apperrors.ErrLiquidationInFlight)
	}
	return nil
}

// Repay applies a customer payment in LPN and re-evaluates the lease
func (l *Lease) Repay(ctx context.Context, now time.Time, payment finance.Coin, prices core.IPriceSource) (RepayResponse, error) {
	if l.Closed {
		return RepayResponse{}, fmt.Errorf("lease %s: %w", l.ID, apperrors.ErrLeaseClosed)
	}
	return l.settle(ctx, now, payment, l.Dust, prices)
}

// OnLiquidationCompleted books a finished sale: the sold asset leaves the
// position and the proceeds repay the loan. A sale is booked even when no
// price is available for the follow-up evaluation; l is then updated, the
// response only asks for a time alarm and the returned error wraps the
// price error.
func (l *Lease) OnLiquidationCompleted(ctx context.Context, now time.Time, result core.SwapResult, prices core.IPriceSource) (RepayResponse, error) {
	if l.InFlight == nil || l.InFlight.ID != result.OrderID {
		return RepayResponse{}, fmt.Errorf("lease %s: unexpected liquidation result %q: %w",
			l.ID, result.OrderID, apperrors.ErrBrokenInvariant)
	}
	next := *l
	if err := next.Position.Sell(result.Sold); err != nil {
		return RepayResponse{}, err
	}
	next.InFlight = nil
	resp, err := next.settle(ctx, now, result.Proceeds, finance.ZeroCoin(l.Lpn()), prices)
	switch {
	case apperrors.IsRetryable(err):
		return l.bookPending(now, result, err)
	case err != nil:
		return RepayResponse{}, err
	}
	*l = next
	return resp, nil
}

// bookPending applies a sale without evaluating the lease afterwards
func (l *Lease) bookPending(now time.Time, result core.SwapResult, cause error) (RepayResponse, error) {
	next := *l
	if err := next.Position.Sell(result.Sold); err != nil {
		return RepayResponse{}, err
	}
	next.InFlight = nil
	receipt, err := next.Loan.Repay(now, result.Proceeds, finance.ZeroCoin(l.Lpn()))
	if err != nil {
		return RepayResponse{}, fmt.Errorf("lease %s: %w", l.ID, err)
	}
	next.UpdatedAt = now
	if receipt.Close {
		next.Closed = true
		*l = next
		return RepayResponse{LoanPaid: true, Receipt: receipt, Response: Response{Status: liquidation.NoDebt()}}, nil
	}
	*l = next

	at := now.Add(l.Position.Spec.Liability.RecalculationTime)
	return RepayResponse{
		LoanPaid: receipt.Close,
		Receipt:  receipt,
		Response: Response{
			Status: liquidation.NotEvaluated(),
			Alarms: alarms.Batch{Time: &at},
			Note:   NoteEvaluationPending,
		},
	}, fmt.Errorf("lease %s: sale %s booked, evaluation pending: %w", l.ID, result.OrderID, cause)
}

// Skipped describes an alarm that was not evaluated. A lease waiting on a
// sale keeps its liquidation status and asks for a time alarm so it is
// looked at again.
func (l *Lease) Skipped(now time.Time) Response {
	if l.Closed || l.InFlight == nil {
		return Response{Status: liquidation.NotEvaluated(), Note: NoteClosed}
	}
	status := liquidation.Partial(l.InFlight.Amount, liquidation.ParseCause(l.InFlight.Cause))
	if l.InFlight.Full {
		status = liquidation.Full(l.InFlight.Amount, status.Cause)
	}
	at := now.Add(l.Position.Spec.Liability.RecalculationTime)
	return Response{Status: status, Alarms: alarms.Batch{Time: &at}, Note: NoteInFlight}
}

func (l *Lease) settle(ctx context.Context, now time.Time, payment, dust finance.Coin, prices core.IPriceSource) (RepayResponse, error) {
	next := *l
	receipt, err := next.Loan.Repay(now, payment, dust)
	if err != nil {
		return RepayResponse{}, fmt.Errorf("lease %s: %w", l.ID, err)
	}

	var resp Response
	if receipt.Close {
		next.Closed = true
		next.UpdatedAt = now
		resp = Response{Status: liquidation.NoDebt()}
	} else if resp, err = next.evaluate(ctx, now, prices); err != nil {
		return RepayResponse{}, err
	}

	*l = next
	return RepayResponse{LoanPaid: receipt.Close, Receipt: receipt, Response: resp}, nil
}

// evaluate computes status and alarms from a single price read and, unless a
// sale is already outstanding, turns a liquidation status into an order.
func (l *Lease) evaluate(ctx context.Context, now time.Time, prices core.IPriceSource) (Response, error) {
	price, err := l.price(ctx, prices)
	if err != nil {
		return Response{}, err
	}
	st, err := l.Loan.State(now)
	if err != nil {
		return Response{}, err
	}
	status, err := liquidation.Evaluate(now, price, st, l.Position)
	if err != nil {
		return Response{}, fmt.Errorf("lease %s: %w", l.ID, err)
	}
	l.UpdatedAt = now

	// nothing left to sell; the remaining debt is written off by the host
	if l.Position.Asset.IsZero() && status.IsLiquidation() {
		l.Closed = true
		return Response{Status: status}, nil
	}

	batch, err := alarms.Schedule(now, status, l.Loan, l.Position)
	if err != nil {
		return Response{}, fmt.Errorf("lease %s: %w", l.ID, err)
	}
	resp := Response{Status: status, Alarms: batch}
	if status.IsLiquidation() && l.InFlight == nil {
		l.InFlight = &core.LiquidationOrder{
			ID:        uuid.NewString(),
			LeaseID:   l.ID,
			Amount:    status.Amount,
			Lpn:       l.Lpn(),
			Cause:     status.Cause.String(),
			Full:      status.Kind == liquidation.KindFull,
			CreatedAt: now,
		}
		resp.Liquidation = l.InFlight
	}
	return resp, nil
}

func (l *Lease) price(ctx context.Context, prices core.IPriceSource) (finance.Price, error) {
	asset := l.Position.Asset.Ticker()
	if asset == l.Lpn() {
		return finance.Identity(asset), nil
	}
	p, err := prices.CurrentPrice(ctx, asset, l.Lpn())
	if err != nil {
		return finance.Price{}, fmt.Errorf("lease %s price %s/%s: %w", l.ID, asset, l.Lpn(), err)
	}
	return p, nil
}
