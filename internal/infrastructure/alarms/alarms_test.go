package alarms

import (
	"context"
	"sync"
	"testing"
	"time"

	"lease_engine/internal/core"
	"lease_engine/pkg/concurrency"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
	"lease_engine/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               {}
func (m *mockLogger) Info(msg string, f ...interface{})                {}
func (m *mockLogger) Warn(msg string, f ...interface{})                {}
func (m *mockLogger) Error(msg string, f ...interface{})               {}
func (m *mockLogger) Fatal(msg string, f ...interface{})               {}
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

// recorder is a Handler that reports deliveries on a channel
type recorder struct {
	mu    sync.Mutex
	calls map[string]int
	fail  error
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string]int), ch: make(chan string, 16)}
}

func (r *recorder) handle(ctx context.Context, leaseID string) error {
	r.mu.Lock()
	r.calls[leaseID]++
	err := r.fail
	r.mu.Unlock()
	r.ch <- leaseID
	return err
}

func (r *recorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func (r *recorder) await(t *testing.T) string {
	t.Helper()
	select {
	case id := <-r.ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("alarm not delivered")
		return ""
	}
}

func newDispatcher(t *testing.T, kind string, h Handler, attempts int) *Dispatcher {
	t.Helper()
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: kind, MaxWorkers: 2, MaxCapacity: 16}, &mockLogger{})
	t.Cleanup(pool.Stop)
	cfg := DispatchConfig{Rate: 1000, Burst: 10, Retry: retry.RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond}}
	return NewDispatcher(kind, h, pool, NewLimiter(cfg), cfg, &mockLogger{})
}

func TestTimeAlarms_DeliversInOrderAndReplaces(t *testing.T) {
	rec := newRecorder()
	ta := NewTimeAlarms(newDispatcher(t, "time", rec.handle, 1), time.Minute, &mockLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ta.Run(ctx) }()

	now := time.Now()
	require.NoError(t, ta.ScheduleTime(ctx, "late", now.Add(80*time.Millisecond)))
	require.NoError(t, ta.ScheduleTime(ctx, "early", now.Add(time.Hour)))
	// a later request replaces the pending alarm of the same lease
	require.NoError(t, ta.ScheduleTime(ctx, "early", now.Add(20*time.Millisecond)))
	require.NoError(t, ta.ScheduleTime(ctx, "cancelled", now.Add(10*time.Millisecond)))
	require.NoError(t, ta.CancelTime(ctx, "cancelled"))

	assert.Equal(t, "early", rec.await(t))
	assert.Equal(t, "late", rec.await(t))

	_, pending := ta.Pending("early")
	assert.False(t, pending)
	assert.Equal(t, 0, rec.count("cancelled"))
}

func TestTimeAlarms_RearmsRetryableFailure(t *testing.T) {
	rec := newRecorder()
	rec.fail = apperrors.ErrStalePrice
	ta := NewTimeAlarms(newDispatcher(t, "time", rec.handle, 2), time.Hour, &mockLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ta.Run(ctx) }()

	require.NoError(t, ta.ScheduleTime(ctx, "lease-1", time.Now()))
	rec.await(t)
	rec.await(t)

	assert.Eventually(t, func() bool {
		at, ok := ta.Pending("lease-1")
		return ok && at.After(time.Now().Add(30*time.Minute))
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rec.count("lease-1"))
}

func atomPrice(t *testing.T, amount, quote uint64) finance.Price {
	t.Helper()
	p, err := finance.NewPrice(finance.NewCoin(amount, "ATOM"), finance.NewCoin(quote, "USDC"))
	require.NoError(t, err)
	return p
}

func TestPriceAlarms_FiresOnceOutsideBracket(t *testing.T) {
	rec := newRecorder()
	pa := NewPriceAlarms(newDispatcher(t, "price", rec.handle, 1), &mockLogger{})
	ctx := context.Background()

	above := atomPrice(t, 1, 2)
	require.NoError(t, pa.SchedulePrice(ctx, "lease-1", atomPrice(t, 1, 1), &above))
	require.NoError(t, pa.SchedulePrice(ctx, "lease-2", atomPrice(t, 2, 1), nil))
	require.NoError(t, pa.SchedulePrice(ctx, "lease-3", atomPrice(t, 1, 1), nil))
	require.NoError(t, pa.CancelPrice(ctx, "lease-3"))

	// inside lease-1's bracket, above lease-2's floor
	pa.OnPrice("ATOM", atomPrice(t, 2, 3))
	// other assets are ignored
	pa.OnPrice("OSMO", atomPrice(t, 1, 100))
	assert.Equal(t, 0, len(rec.ch))

	// exactly at the floor fires
	pa.OnPrice("ATOM", atomPrice(t, 1, 1))
	assert.Equal(t, "lease-1", rec.await(t))
	_, ok := pa.Pending("lease-1")
	assert.False(t, ok)

	pa.OnPrice("ATOM", atomPrice(t, 3, 1))
	assert.Equal(t, "lease-2", rec.await(t))
	assert.Equal(t, 1, rec.count("lease-1"))
	assert.Equal(t, 0, rec.count("lease-3"))
}

func TestPriceAlarms_AboveIsStrict(t *testing.T) {
	rec := newRecorder()
	pa := NewPriceAlarms(newDispatcher(t, "price", rec.handle, 1), &mockLogger{})
	ctx := context.Background()

	above := atomPrice(t, 1, 2)
	require.NoError(t, pa.SchedulePrice(ctx, "lease-1", atomPrice(t, 1, 1), &above))

	pa.OnPrice("ATOM", atomPrice(t, 1, 2))
	_, ok := pa.Pending("lease-1")
	assert.True(t, ok)

	pa.OnPrice("ATOM", atomPrice(t, 1, 3))
	assert.Equal(t, "lease-1", rec.await(t))
}
