package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lease_engine/internal/core"
	"lease_engine/internal/lease"
	"lease_engine/internal/lease/liability"
	"lease_engine/internal/lease/loan"
	"lease_engine/internal/lease/position"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleLease(t *testing.T, id string) *lease.Lease {
	t.Helper()
	l, err := liability.New(
		finance.FromPercent(65), finance.FromPercent(70), finance.FromPercent(72),
		finance.FromPercent(75), finance.FromPercent(78), finance.FromPercent(80), time.Hour)
	require.NoError(t, err)
	spec, err := position.NewSpec(l, finance.NewCoin(15_000, "USDC"), finance.NewCoin(10, "USDC"))
	require.NoError(t, err)
	pos, err := position.New(finance.NewCoin(1_000, "ATOM"), spec)
	require.NoError(t, err)
	ln, err := loan.New(finance.NewCoin(650, "USDC"), finance.FromPercent(10), finance.FromPercent(4),
		t0, 30*24*time.Hour, 10*24*time.Hour)
	require.NoError(t, err)

	return &lease.Lease{
		ID:        id,
		Customer:  "nolus1customer",
		Loan:      ln,
		Position:  pos,
		Dust:      finance.NewCoin(1, "USDC"),
		OpenedAt:  t0,
		UpdatedAt: t0,
	}
}

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "leases.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStores_SaveLoadList(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLite(t),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.LoadLease(ctx, "missing")
			assert.ErrorIs(t, err, apperrors.ErrLeaseNotFound)

			first := sampleLease(t, "lease-b")
			first.InFlight = &core.LiquidationOrder{
				ID:        "order-1",
				LeaseID:   "lease-b",
				Amount:    finance.NewCoin(375, "ATOM"),
				Lpn:       "USDC",
				Cause:     "liability",
				CreatedAt: t0,
			}
			require.NoError(t, s.SaveLease(ctx, first))
			require.NoError(t, s.SaveLease(ctx, sampleLease(t, "lease-a")))

			loaded, err := s.LoadLease(ctx, "lease-b")
			require.NoError(t, err)
			assert.Equal(t, 0, loaded.Loan.Principal.Cmp(first.Loan.Principal))
			assert.True(t, loaded.Loan.InterestPaid.Equal(t0))
			assert.Equal(t, 0, loaded.Position.Asset.Cmp(first.Position.Asset))
			assert.Equal(t, first.Position.Spec.Liability, loaded.Position.Spec.Liability)
			require.NotNil(t, loaded.InFlight)
			assert.Equal(t, "order-1", loaded.InFlight.ID)

			// Mutating the loaded copy does not reach the stored record
			loaded.Closed = true
			again, err := s.LoadLease(ctx, "lease-b")
			require.NoError(t, err)
			assert.False(t, again.Closed)

			all, err := s.ListLeases(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "lease-a", all[0].ID)
			assert.Equal(t, "lease-b", all[1].ID)
		})
	}
}

func TestSQLiteStore_Replace(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	l := sampleLease(t, "lease-1")
	require.NoError(t, s.SaveLease(ctx, l))
	l.Closed = true
	require.NoError(t, s.SaveLease(ctx, l))

	loaded, err := s.LoadLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.True(t, loaded.Closed)

	var closed int
	require.NoError(t, s.db.QueryRow(`SELECT closed FROM leases WHERE id = ?`, "lease-1").Scan(&closed))
	assert.Equal(t, 1, closed)
}

func TestSQLiteStore_WALMode(t *testing.T) {
	s := newSQLite(t)

	var journalMode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestSQLiteStore_ChecksumValidation(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLease(ctx, sampleLease(t, "lease-1")))
	_, err := s.db.Exec(`UPDATE leases SET data = '{"id":"lease-1","closed":true}' WHERE id = 'lease-1'`)
	require.NoError(t, err)

	_, err = s.LoadLease(ctx, "lease-1")
	assert.ErrorIs(t, err, ErrChecksum)

	_, err = s.ListLeases(ctx)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leases.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveLease(ctx, sampleLease(t, "lease-1")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.LoadLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.Equal(t, "nolus1customer", loaded.Customer)
}

func TestSQLiteStore_ContextCancellation(t *testing.T) {
	s := newSQLite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.SaveLease(ctx, sampleLease(t, "lease-1")))
}

func TestStores_Ping(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NewMemoryStore().Ping(ctx))

	s := newSQLite(t)
	assert.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(ctx))
}
