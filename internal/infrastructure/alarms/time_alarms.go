package alarms

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"lease_engine/internal/core"
	"lease_engine/pkg/telemetry"
)

type timeAlarm struct {
	leaseID string
	at      time.Time
	index   int
}

type alarmHeap []*timeAlarm

func (h alarmHeap) Len() int           { return len(h) }
func (h alarmHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h alarmHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *alarmHeap) Push(x interface{}) {
	a := x.(*timeAlarm)
	a.index = len(*h)
	*h = append(*h, a)
}
func (h *alarmHeap) Pop() interface{} {
	old := *h
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	a.index = -1
	return a
}

// TimeAlarms implements core.ITimeAlarms with a timer heap. A lease has at
// most one pending alarm; a new request replaces it.
type TimeAlarms struct {
	dispatch *Dispatcher
	rearm    time.Duration
	logger   core.ILogger
	now      func() time.Time

	mu      sync.Mutex
	queue   alarmHeap
	byLease map[string]*timeAlarm
	wake    chan struct{}
}

// NewTimeAlarms creates the service. A delivery that keeps failing with a
// retryable error is re-armed rearm later.
func NewTimeAlarms(d *Dispatcher, rearm time.Duration, logger core.ILogger) *TimeAlarms {
	if rearm <= 0 {
		rearm = time.Minute
	}
	return &TimeAlarms{
		dispatch: d,
		rearm:    rearm,
		logger:   logger.WithField("component", "time_alarms"),
		now:      time.Now,
		byLease:  make(map[string]*timeAlarm),
		wake:     make(chan struct{}, 1),
	}
}

func (t *TimeAlarms) ScheduleTime(ctx context.Context, leaseID string, at time.Time) error {
	t.mu.Lock()
	if a, ok := t.byLease[leaseID]; ok {
		a.at = at
		heap.Fix(&t.queue, a.index)
	} else {
		a = &timeAlarm{leaseID: leaseID, at: at}
		heap.Push(&t.queue, a)
		t.byLease[leaseID] = a
	}
	t.updatePending()
	t.mu.Unlock()

	t.signal()
	return nil
}

func (t *TimeAlarms) CancelTime(ctx context.Context, leaseID string) error {
	t.mu.Lock()
	if a, ok := t.byLease[leaseID]; ok {
		heap.Remove(&t.queue, a.index)
		delete(t.byLease, leaseID)
		t.updatePending()
	}
	t.mu.Unlock()

	t.signal()
	return nil
}

// Pending returns the scheduled instant for a lease
func (t *TimeAlarms) Pending(leaseID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.byLease[leaseID]; ok {
		return a.at, true
	}
	return time.Time{}, false
}

// Run delivers due alarms until ctx is done
func (t *TimeAlarms) Run(ctx context.Context) error {
	t.logger.Info("Time alarm service started")
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		for _, id := range t.popDue() {
			id := id
			t.dispatch.deliver(ctx, id, func() {
				_ = t.scheduleIfAbsent(id, t.now().Add(t.rearm))
			})
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(t.untilNext())

		select {
		case <-ctx.Done():
			t.logger.Info("Time alarm service stopped")
			return nil
		case <-t.wake:
		case <-timer.C:
		}
	}
}

func (t *TimeAlarms) popDue() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var due []string
	for t.queue.Len() > 0 && !t.queue[0].at.After(now) {
		a := heap.Pop(&t.queue).(*timeAlarm)
		delete(t.byLease, a.leaseID)
		due = append(due, a.leaseID)
	}
	if len(due) > 0 {
		t.updatePending()
	}
	return due
}

func (t *TimeAlarms) untilNext() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queue.Len() == 0 {
		return time.Hour
	}
	if d := t.queue[0].at.Sub(t.now()); d > 0 {
		return d
	}
	return 0
}

// scheduleIfAbsent re-arms a failed delivery unless the lease was rescheduled meanwhile
func (t *TimeAlarms) scheduleIfAbsent(leaseID string, at time.Time) error {
	t.mu.Lock()
	_, ok := t.byLease[leaseID]
	t.mu.Unlock()
	if ok {
		return nil
	}
	return t.ScheduleTime(context.Background(), leaseID, at)
}

func (t *TimeAlarms) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *TimeAlarms) updatePending() {
	telemetry.GetGlobalMetrics().SetPendingAlarms("time", int64(len(t.byLease)))
}
