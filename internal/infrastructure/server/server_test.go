package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lease_engine/internal/core"
	"lease_engine/internal/engine"
	"lease_engine/internal/infrastructure/health"
	"lease_engine/internal/lease"
	"lease_engine/internal/lease/liquidation"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               { fmt.Printf("DEBUG: %s %v\n", msg, f) }
func (m *mockLogger) Info(msg string, f ...interface{})                { fmt.Printf("INFO: %s %v\n", msg, f) }
func (m *mockLogger) Warn(msg string, f ...interface{})                { fmt.Printf("WARN: %s %v\n", msg, f) }
func (m *mockLogger) Error(msg string, f ...interface{})               { fmt.Printf("ERROR: %s %v\n", msg, f) }
func (m *mockLogger) Fatal(msg string, f ...interface{})               { fmt.Printf("FATAL: %s %v\n", msg, f) }
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

type mockLeases struct {
	mock.Mock
}

func (m *mockLeases) OpenLease(ctx context.Context, p engine.OpenParams) (*lease.Lease, lease.Response, error) {
	args := m.Called(ctx, p)
	l, _ := args.Get(0).(*lease.Lease)
	return l, args.Get(1).(lease.Response), args.Error(2)
}

func (m *mockLeases) Repay(ctx context.Context, id string, payment finance.Coin) (lease.RepayResponse, error) {
	args := m.Called(ctx, id, payment)
	return args.Get(0).(lease.RepayResponse), args.Error(1)
}

func (m *mockLeases) QueryState(ctx context.Context, id string) (lease.StateView, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(lease.StateView), args.Error(1)
}

func newTestServer(leases LeaseService, hm core.IHealthMonitor) *httptest.Server {
	s := NewServer(Config{Addr: ":0"}, leases, hm, &mockLogger{})
	return httptest.NewServer(s.Handler())
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_OpenLease(t *testing.T) {
	leases := &mockLeases{}
	want := engine.OpenParams{
		ID:          "lease-1",
		Customer:    "alice",
		Downpayment: finance.NewCoin(350, "USDC"),
		Borrow:      finance.NewCoin(650, "USDC"),
		Asset:       finance.NewCoin(1000, "ATOM"),
	}
	leases.On("OpenLease", mock.Anything, mock.MatchedBy(func(p engine.OpenParams) bool {
		return p.ID == want.ID && p.Customer == want.Customer &&
			p.Downpayment.String() == want.Downpayment.String() &&
			p.Borrow.String() == want.Borrow.String() &&
			p.Asset.String() == want.Asset.String()
	})).
		Return(&lease.Lease{ID: "lease-1"}, lease.Response{Status: liquidation.NoWarning()}, nil)

	ts := newTestServer(leases, nil)
	defer ts.Close()

	body := `{"id":"lease-1","customer":"alice",
		"downpayment":{"amount":"350","ticker":"USDC"},
		"borrow":{"amount":"650","ticker":"USDC"},
		"asset":{"amount":"1000","ticker":"ATOM"}}`
	resp, err := http.Post(ts.URL+"/leases", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	out := decode(t, resp)
	assert.Equal(t, "lease-1", out["id"])
	status, ok := out["status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "no_warning", status["kind"])
	leases.AssertExpectations(t)
}

func TestServer_OpenLease_BadBody(t *testing.T) {
	ts := newTestServer(&mockLeases{}, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/leases", "application/json", strings.NewReader(`{"borrow":{"amount":"-1","ticker":"USDC"}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "invalid request body")
}

func TestServer_QueryState(t *testing.T) {
	leases := &mockLeases{}
	leases.On("QueryState", mock.Anything, "lease-1").
		Return(lease.StateView{ID: "lease-1", Customer: "alice", TotalDue: finance.NewCoin(12, "USDC")}, nil)
	leases.On("QueryState", mock.Anything, "missing").
		Return(lease.StateView{}, fmt.Errorf("load missing: %w", apperrors.ErrLeaseNotFound))

	ts := newTestServer(leases, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/leases/lease-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, "alice", out["customer"])
	assert.Equal(t, map[string]interface{}{"amount": "12", "ticker": "USDC"}, out["total_due"])

	resp, err = http.Get(ts.URL + "/leases/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "lease not found")
}

func TestServer_Repay(t *testing.T) {
	leases := &mockLeases{}
	leases.On("Repay", mock.Anything, "lease-1", mock.MatchedBy(func(c finance.Coin) bool {
		return c.String() == "700 USDC"
	})).
		Return(lease.RepayResponse{LoanPaid: true, Response: lease.Response{Status: liquidation.NoDebt()}}, nil)

	ts := newTestServer(leases, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/leases/lease-1/repay", "application/json",
		strings.NewReader(`{"payment":{"amount":"700","ticker":"USDC"}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["loan_paid"])
	leases.AssertExpectations(t)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.ErrLeaseNotFound, http.StatusNotFound},
		{apperrors.ErrLeaseExists, http.StatusConflict},
		{fmt.Errorf("repay: %w", apperrors.ErrLeaseClosed), http.StatusConflict},
		{apperrors.ErrInsufficientPayment, http.StatusUnprocessableEntity},
		{apperrors.ErrCurrencyMismatch, http.StatusUnprocessableEntity},
		{apperrors.ErrUnknownCurrency, http.StatusUnprocessableEntity},
		{apperrors.ErrBrokenInvariant, http.StatusUnprocessableEntity},
		{apperrors.ErrStalePrice, http.StatusServiceUnavailable},
		{apperrors.ErrNoPrice, http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestServer_Health(t *testing.T) {
	hm := health.NewHealthManager(nil)
	var feedErr error
	hm.Register("price_feed", func() error { return feedErr })

	ts := newTestServer(&mockLeases{}, hm)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, map[string]interface{}{"price_feed": "Healthy"}, out["components"])

	feedErr = errors.New("disconnected")
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unhealthy", decode(t, resp)["status"])
}
