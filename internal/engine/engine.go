// Package engine hosts leases: it serializes events per lease, runs them
// through the lease facade, persists the result and hands the resulting
// alarm and liquidation requests to the collaborators.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lease_engine/internal/core"
	"lease_engine/internal/lease"
	"lease_engine/internal/lease/position"
	"lease_engine/internal/store"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
	"lease_engine/pkg/retry"
	"lease_engine/pkg/telemetry"

	"github.com/google/uuid"
)

// Terms are the lease parameters the engine applies to every new lease
type Terms struct {
	Spec           position.Spec
	AnnualInterest finance.Percent
	AnnualMargin   finance.Percent
	DuePeriod      time.Duration
	GracePeriod    time.Duration
}

// Config wires the engine
type Config struct {
	Terms       Terms
	Registry    *finance.Registry
	PriceRetry  retry.RetryPolicy
	BreakerWait time.Duration // circuit breaker open delay for the price source
}

// OpenParams describes a new lease. ID is generated when empty.
type OpenParams struct {
	ID          string
	Customer    string
	Downpayment finance.Coin
	Borrow      finance.Coin
	Asset       finance.Coin
}

// LeaseEngine is the host orchestrator
type LeaseEngine struct {
	store       store.Store
	prices      core.IPriceSource
	timeAlarms  core.ITimeAlarms
	priceAlarms core.IPriceAlarms
	swap        core.ISwapService
	logger      core.ILogger
	metrics     *telemetry.MetricsHolder

	terms    Terms
	registry *finance.Registry
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*leaseLock
}

func New(
	cfg Config,
	st store.Store,
	prices core.IPriceSource,
	timeAlarms core.ITimeAlarms,
	priceAlarms core.IPriceAlarms,
	swap core.ISwapService,
	logger core.ILogger,
) (*LeaseEngine, error) {
	if err := cfg.Terms.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lease terms: %w", err)
	}
	if cfg.Registry == nil || !cfg.Registry.IsLpn(cfg.Terms.Spec.Lpn()) {
		return nil, fmt.Errorf("lease terms currency %s is not the registry LPN: %w",
			cfg.Terms.Spec.Lpn(), apperrors.ErrUnknownCurrency)
	}
	log := logger.WithField("component", "lease_engine")
	return &LeaseEngine{
		store:       st,
		prices:      newResilientPrices(prices, cfg.PriceRetry, cfg.BreakerWait, log),
		timeAlarms:  timeAlarms,
		priceAlarms: priceAlarms,
		swap:        swap,
		logger:      log,
		metrics:     telemetry.GetGlobalMetrics(),
		terms:       cfg.Terms,
		registry:    cfg.Registry,
		now:         time.Now,
	}, nil
}

// Start re-arms every open lease after a restart: outstanding sales are
// resubmitted and the others are re-evaluated to reschedule their alarms.
func (e *LeaseEngine) Start(ctx context.Context) error {
	leases, err := e.store.ListLeases(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore leases: %w", err)
	}
	e.logger.Info("Restoring leases", "count", len(leases))

	for _, l := range leases {
		switch {
		case l.Closed:
			continue
		case l.InFlight != nil:
			if err := e.swap.Sell(ctx, *l.InFlight); err != nil {
				e.logger.Error("Failed to resubmit liquidation", "lease_id", l.ID, "order_id", l.InFlight.ID, "error", err)
			}
			e.metrics.SetLeaseStatus(l.ID, "liquidating")
		default:
			if _, err := e.HandleTimeAlarm(ctx, l.ID); err != nil {
				e.logger.Warn("Failed to re-evaluate lease", "lease_id", l.ID, "error", err)
			}
		}
	}
	return nil
}

// OpenLease validates the currencies, opens the lease and schedules its first alarms
func (e *LeaseEngine) OpenLease(ctx context.Context, p OpenParams) (*lease.Lease, lease.Response, error) {
	lpn := e.terms.Spec.Lpn()
	if !e.registry.Leasable(p.Asset.Ticker()) {
		return nil, lease.Response{}, fmt.Errorf("asset %s is not leasable: %w", p.Asset.Ticker(), apperrors.ErrUnknownCurrency)
	}
	if p.Downpayment.Ticker() != lpn || p.Borrow.Ticker() != lpn {
		return nil, lease.Response{}, fmt.Errorf("downpayment %s and borrow %s must be in %s: %w",
			p.Downpayment, p.Borrow, lpn, apperrors.ErrCurrencyMismatch)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	unlock := e.lock(p.ID)
	defer unlock()

	if _, err := e.store.LoadLease(ctx, p.ID); err == nil {
		return nil, lease.Response{}, fmt.Errorf("lease %s: %w", p.ID, apperrors.ErrLeaseExists)
	} else if !errors.Is(err, apperrors.ErrLeaseNotFound) {
		return nil, lease.Response{}, err
	}

	start := time.Now()
	now := e.now()
	l, resp, err := lease.Open(ctx, now, lease.OpenRequest{
		ID:             p.ID,
		Customer:       p.Customer,
		Downpayment:    p.Downpayment,
		Borrow:         p.Borrow,
		Asset:          p.Asset,
		AnnualInterest: e.terms.AnnualInterest,
		AnnualMargin:   e.terms.AnnualMargin,
		DuePeriod:      e.terms.DuePeriod,
		GracePeriod:    e.terms.GracePeriod,
		Spec:           e.terms.Spec,
		Dust:           e.registry.Lpn().DustCoin(),
	}, e.prices)
	if err != nil {
		e.recordFailure(ctx, err)
		return nil, lease.Response{}, err
	}
	if err := e.commit(ctx, "open", l, resp, start); err != nil {
		return nil, lease.Response{}, err
	}
	e.logger.Info("Lease opened", "lease_id", l.ID, "customer", l.Customer, "asset", l.Position.Asset, "principal", l.Loan.Principal)
	return l, resp, nil
}

// HandleTimeAlarm re-evaluates a lease on a time alarm. Alarms for closed
// leases or leases with an outstanding sale are acknowledged and skipped.
func (e *LeaseEngine) HandleTimeAlarm(ctx context.Context, id string) (lease.Response, error) {
	return e.handleAlarm(ctx, "time_alarm", id, (*lease.Lease).OnTimeAlarm)
}

// HandlePriceAlarm re-evaluates a lease after its price bracket was crossed
func (e *LeaseEngine) HandlePriceAlarm(ctx context.Context, id string) (lease.Response, error) {
	return e.handleAlarm(ctx, "price_alarm", id, (*lease.Lease).OnPriceAlarm)
}

type alarmHandler func(l *lease.Lease, ctx context.Context, now time.Time, prices core.IPriceSource) (lease.Response, error)

func (e *LeaseEngine) handleAlarm(ctx context.Context, event, id string, handle alarmHandler) (lease.Response, error) {
	unlock := e.lock(id)
	defer unlock()

	start := time.Now()
	l, err := e.store.LoadLease(ctx, id)
	if err != nil {
		return lease.Response{}, err
	}
	resp, err := handle(l, ctx, e.now(), e.prices)
	switch {
	case errors.Is(err, apperrors.ErrLeaseClosed), errors.Is(err, apperrors.ErrLiquidationInFlight):
		e.logger.Debug("Alarm skipped", "lease_id", id, "event", event, "reason", err)
		return e.skip(ctx, l)
	case err != nil:
		e.recordFailure(ctx, err)
		e.logger.Warn("Alarm evaluation failed", "lease_id", id, "event", event, "error", err)
		return lease.Response{}, err
	}
	if err := e.commit(ctx, event, l, resp, start); err != nil {
		return lease.Response{}, err
	}
	return resp, nil
}

// Repay applies a customer payment
func (e *LeaseEngine) Repay(ctx context.Context, id string, payment finance.Coin) (lease.RepayResponse, error) {
	unlock := e.lock(id)
	defer unlock()

	start := time.Now()
	l, err := e.store.LoadLease(ctx, id)
	if err != nil {
		return lease.RepayResponse{}, err
	}
	resp, err := l.Repay(ctx, e.now(), payment, e.prices)
	if err != nil {
		e.recordFailure(ctx, err)
		return lease.RepayResponse{}, err
	}
	if err := e.commit(ctx, "repay", l, resp.Response, start); err != nil {
		return lease.RepayResponse{}, err
	}
	e.metrics.RecordRepayment(ctx, "customer", resp.LoanPaid)
	e.logger.Info("Repayment applied", "lease_id", id, "payment", payment, "principal_paid", resp.Receipt.Principal, "excess", resp.Receipt.Excess, "loan_paid", resp.LoanPaid)
	return resp, nil
}

// OnLiquidationCompleted books the result of a sale
func (e *LeaseEngine) OnLiquidationCompleted(ctx context.Context, id string, result core.SwapResult) (lease.RepayResponse, error) {
	unlock := e.lock(id)
	defer unlock()

	start := time.Now()
	l, err := e.store.LoadLease(ctx, id)
	if err != nil {
		return lease.RepayResponse{}, err
	}
	resp, evalErr := l.OnLiquidationCompleted(ctx, e.now(), result, e.prices)
	if evalErr != nil {
		e.recordFailure(ctx, evalErr)
		if resp.Note != lease.NoteEvaluationPending {
			return lease.RepayResponse{}, evalErr
		}
		e.logger.Warn("Liquidation booked without evaluation", "lease_id", id, "order_id", result.OrderID, "error", evalErr)
	}
	if err := e.commit(ctx, "liquidation_completed", l, resp.Response, start); err != nil {
		return lease.RepayResponse{}, err
	}
	e.metrics.RecordRepayment(ctx, "liquidation", resp.LoanPaid)
	e.logger.Info("Liquidation booked", "lease_id", id, "order_id", result.OrderID, "sold", result.Sold, "proceeds", result.Proceeds)
	return resp, evalErr
}

// skip acknowledges an alarm the lease cannot act on. A lease waiting on a
// sale gets a fresh time alarm and its order is handed to the swap service
// again; Sell is idempotent per order id.
func (e *LeaseEngine) skip(ctx context.Context, l *lease.Lease) (lease.Response, error) {
	resp := l.Skipped(e.now())
	if l.Closed || l.InFlight == nil {
		return resp, nil
	}
	var errs []error
	if at := resp.Alarms.Time; at != nil {
		errs = append(errs, e.timeAlarms.ScheduleTime(ctx, l.ID, *at))
	}
	if err := e.swap.Sell(ctx, *l.InFlight); err != nil {
		errs = append(errs, fmt.Errorf("failed to resubmit liquidation %s: %w", l.InFlight.ID, err))
	}
	return resp, errors.Join(errs...)
}

// QueryState reports the lease state without changing it
func (e *LeaseEngine) QueryState(ctx context.Context, id string) (lease.StateView, error) {
	l, err := e.store.LoadLease(ctx, id)
	if err != nil {
		return lease.StateView{}, err
	}
	return l.QueryState(e.now())
}

// commit persists the lease first and then dispatches the requests, so a
// crash between the two is repaired by Start.
func (e *LeaseEngine) commit(ctx context.Context, event string, l *lease.Lease, resp lease.Response, start time.Time) error {
	if err := e.store.SaveLease(ctx, l); err != nil {
		return fmt.Errorf("failed to save lease %s: %w", l.ID, err)
	}
	e.metrics.RecordEvaluation(ctx, event, resp.Status.Kind.String(), time.Since(start))
	return e.dispatch(ctx, l, resp)
}

func (e *LeaseEngine) dispatch(ctx context.Context, l *lease.Lease, resp lease.Response) error {
	var errs []error
	if l.Closed {
		e.metrics.SetLeaseStatus(l.ID, "")
		errs = append(errs, e.timeAlarms.CancelTime(ctx, l.ID), e.priceAlarms.CancelPrice(ctx, l.ID))
		e.logger.Info("Lease closed", "lease_id", l.ID, "status", resp.Status.String())
		return errors.Join(errs...)
	}

	e.metrics.SetLeaseStatus(l.ID, resp.Status.Kind.String())
	if at := resp.Alarms.Time; at != nil {
		errs = append(errs, e.timeAlarms.ScheduleTime(ctx, l.ID, *at))
		e.metrics.RecordAlarmScheduled(ctx, "time")
	} else {
		errs = append(errs, e.timeAlarms.CancelTime(ctx, l.ID))
	}
	if pa := resp.Alarms.Price; pa != nil {
		errs = append(errs, e.priceAlarms.SchedulePrice(ctx, l.ID, pa.Below, pa.Above))
		e.metrics.RecordAlarmScheduled(ctx, "price")
	} else {
		errs = append(errs, e.priceAlarms.CancelPrice(ctx, l.ID))
	}

	if order := resp.Liquidation; order != nil {
		e.metrics.RecordLiquidation(ctx, order.Cause, order.Full)
		e.logger.Warn("Liquidation issued", "lease_id", l.ID, "order_id", order.ID, "amount", order.Amount, "cause", order.Cause, "full", order.Full)
		if err := e.swap.Sell(ctx, *order); err != nil {
			errs = append(errs, fmt.Errorf("failed to submit liquidation %s: %w", order.ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		e.logger.Error("Dispatch failed", "lease_id", l.ID, "error", err)
		return err
	}
	return nil
}

func (e *LeaseEngine) recordFailure(ctx context.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrStalePrice):
		e.metrics.RecordPriceError(ctx, "stale")
	case errors.Is(err, apperrors.ErrNoPrice):
		e.metrics.RecordPriceError(ctx, "missing")
	}
}

type leaseLock struct {
	sync.Mutex
	refs int
}

// lock serializes events of one lease. The entry is dropped once no
// caller holds or waits for it.
func (e *LeaseEngine) lock(id string) func() {
	e.mu.Lock()
	if e.locks == nil {
		e.locks = make(map[string]*leaseLock)
	}
	m, ok := e.locks[id]
	if !ok {
		m = &leaseLock{}
		e.locks[id] = m
	}
	m.refs++
	e.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		e.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}
