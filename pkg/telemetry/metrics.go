package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricEvaluationsTotal    = "lease_engine_evaluations_total"
	MetricEvaluationLatency   = "lease_engine_evaluation_latency_ms"
	MetricLiquidationsTotal   = "lease_engine_liquidations_total"
	MetricRepaymentsTotal     = "lease_engine_repayments_total"
	MetricPriceErrorsTotal    = "lease_engine_price_errors_total"
	MetricAlarmsScheduled     = "lease_engine_alarms_scheduled_total"
	MetricAlarmsDelivered     = "lease_engine_alarms_delivered_total"
	MetricLeasesByStatus      = "lease_engine_leases_by_status"
	MetricPendingAlarms       = "lease_engine_pending_alarms"
	MetricPriceFeedReconnects = "lease_engine_price_feed_reconnects_total"
)

// MetricsHolder holds initialized instruments. Recording helpers are no-ops
// until InitMetrics has run.
type MetricsHolder struct {
	EvaluationsTotal    metric.Int64Counter
	EvaluationLatency   metric.Float64Histogram
	LiquidationsTotal   metric.Int64Counter
	RepaymentsTotal     metric.Int64Counter
	PriceErrorsTotal    metric.Int64Counter
	AlarmsScheduled     metric.Int64Counter
	AlarmsDelivered     metric.Int64Counter
	PriceFeedReconnects metric.Int64Counter
	LeasesByStatus      metric.Int64ObservableGauge
	PendingAlarms       metric.Int64ObservableGauge

	// State for observable gauges
	mu            sync.RWMutex
	leaseStatus   map[string]string // lease id -> status kind
	pendingAlarms map[string]int64  // alarm kind -> count
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			leaseStatus:   make(map[string]string),
			pendingAlarms: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.EvaluationsTotal, err = meter.Int64Counter(MetricEvaluationsTotal, metric.WithDescription("Lease evaluations by event and resulting status"))
	if err != nil {
		return err
	}

	m.EvaluationLatency, err = meter.Float64Histogram(MetricEvaluationLatency, metric.WithDescription("Time to load, evaluate and store a lease"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.LiquidationsTotal, err = meter.Int64Counter(MetricLiquidationsTotal, metric.WithDescription("Liquidation orders issued"))
	if err != nil {
		return err
	}

	m.RepaymentsTotal, err = meter.Int64Counter(MetricRepaymentsTotal, metric.WithDescription("Repayments applied"))
	if err != nil {
		return err
	}

	m.PriceErrorsTotal, err = meter.Int64Counter(MetricPriceErrorsTotal, metric.WithDescription("Evaluations aborted for lack of a fresh price"))
	if err != nil {
		return err
	}

	m.AlarmsScheduled, err = meter.Int64Counter(MetricAlarmsScheduled, metric.WithDescription("Alarms requested from the alarm services"))
	if err != nil {
		return err
	}

	m.AlarmsDelivered, err = meter.Int64Counter(MetricAlarmsDelivered, metric.WithDescription("Alarms delivered back to the engine"))
	if err != nil {
		return err
	}

	m.PriceFeedReconnects, err = meter.Int64Counter(MetricPriceFeedReconnects, metric.WithDescription("Price feed stream reconnections"))
	if err != nil {
		return err
	}

	m.LeasesByStatus, err = meter.Int64ObservableGauge(MetricLeasesByStatus, metric.WithDescription("Open leases by last evaluated status"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			counts := make(map[string]int64)
			for _, status := range m.leaseStatus {
				counts[status]++
			}
			for status, n := range counts {
				obs.Observe(n, metric.WithAttributes(attribute.String("status", status)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PendingAlarms, err = meter.Int64ObservableGauge(MetricPendingAlarms, metric.WithDescription("Alarms waiting to fire"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for kind, n := range m.pendingAlarms {
				obs.Observe(n, metric.WithAttributes(attribute.String("kind", kind)))
			}
			return nil
		}))
	return err
}

// RecordEvaluation counts an evaluation and its latency
func (m *MetricsHolder) RecordEvaluation(ctx context.Context, event, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("event", event), attribute.String("status", status))
	if m.EvaluationsTotal != nil {
		m.EvaluationsTotal.Add(ctx, 1, attrs)
	}
	if m.EvaluationLatency != nil {
		m.EvaluationLatency.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(attribute.String("event", event)))
	}
}

func (m *MetricsHolder) RecordLiquidation(ctx context.Context, cause string, full bool) {
	if m.LiquidationsTotal != nil {
		m.LiquidationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause), attribute.Bool("full", full)))
	}
}

func (m *MetricsHolder) RecordRepayment(ctx context.Context, source string, loanPaid bool) {
	if m.RepaymentsTotal != nil {
		m.RepaymentsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source), attribute.Bool("loan_paid", loanPaid)))
	}
}

func (m *MetricsHolder) RecordPriceError(ctx context.Context, reason string) {
	if m.PriceErrorsTotal != nil {
		m.PriceErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *MetricsHolder) RecordAlarmScheduled(ctx context.Context, kind string) {
	if m.AlarmsScheduled != nil {
		m.AlarmsScheduled.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *MetricsHolder) RecordAlarmDelivered(ctx context.Context, kind string) {
	if m.AlarmsDelivered != nil {
		m.AlarmsDelivered.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *MetricsHolder) RecordReconnect(ctx context.Context) {
	if m.PriceFeedReconnects != nil {
		m.PriceFeedReconnects.Add(ctx, 1)
	}
}

// Helpers to update observable state

// SetLeaseStatus records the last status of a lease; an empty status forgets it
func (m *MetricsHolder) SetLeaseStatus(leaseID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == "" {
		delete(m.leaseStatus, leaseID)
		return
	}
	m.leaseStatus[leaseID] = status
}

func (m *MetricsHolder) SetPendingAlarms(kind string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingAlarms[kind] = n
}

// GetStatusCounts returns the number of leases per status
func (m *MetricsHolder) GetStatusCounts() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for _, s := range m.leaseStatus {
		res[s]++
	}
	return res
}
