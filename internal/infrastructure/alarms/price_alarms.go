package alarms

import (
	"context"
	"sync"

	"lease_engine/internal/core"
	leasealarms "lease_engine/internal/lease/alarms"
	"lease_engine/pkg/finance"
	"lease_engine/pkg/telemetry"
)

type bracket struct {
	asset finance.Ticker
	alarm leasealarms.PriceAlarm
}

// PriceAlarms implements core.IPriceAlarms. Brackets are checked against
// every quote of their asset; a crossed bracket is removed and delivered once.
type PriceAlarms struct {
	dispatch *Dispatcher
	logger   core.ILogger

	mu       sync.Mutex
	ctx      context.Context
	brackets map[string]bracket
}

func NewPriceAlarms(d *Dispatcher, logger core.ILogger) *PriceAlarms {
	return &PriceAlarms{
		dispatch: d,
		logger:   logger.WithField("component", "price_alarms"),
		ctx:      context.Background(),
		brackets: make(map[string]bracket),
	}
}

// Run binds deliveries to ctx and blocks until it is done
func (p *PriceAlarms) Run(ctx context.Context) error {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
	p.logger.Info("Price alarm service started")
	<-ctx.Done()
	return nil
}

func (p *PriceAlarms) SchedulePrice(ctx context.Context, leaseID string, below finance.Price, above *finance.Price) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.brackets[leaseID] = bracket{
		asset: below.Base(),
		alarm: leasealarms.PriceAlarm{Below: below, Above: above},
	}
	p.updatePending()
	return nil
}

func (p *PriceAlarms) CancelPrice(ctx context.Context, leaseID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.brackets, leaseID)
	p.updatePending()
	return nil
}

// Pending returns the bracket scheduled for a lease
func (p *PriceAlarms) Pending(leaseID string) (leasealarms.PriceAlarm, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.brackets[leaseID]
	return b.alarm, ok
}

// OnPrice checks the brackets of asset against a new quote
func (p *PriceAlarms) OnPrice(asset finance.Ticker, spot finance.Price) {
	p.mu.Lock()
	var fired []string
	for id, b := range p.brackets {
		if b.asset == asset && b.alarm.Triggered(spot) {
			fired = append(fired, id)
			delete(p.brackets, id)
		}
	}
	if len(fired) > 0 {
		p.updatePending()
	}
	ctx := p.ctx
	p.mu.Unlock()

	for _, id := range fired {
		p.logger.Debug("Price alarm fired", "lease_id", id, "spot", spot)
		p.dispatch.deliver(ctx, id, nil)
	}
}

func (p *PriceAlarms) updatePending() {
	telemetry.GetGlobalMetrics().SetPendingAlarms("price", int64(len(p.brackets)))
}
