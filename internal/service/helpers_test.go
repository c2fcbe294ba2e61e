package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
	"github.com/roach88/civicledger/internal/store"
	"github.com/roach88/civicledger/internal/testutil"
)

type fixture struct {
	svc      *Service
	st       *store.Store
	registry *prometheus.Registry
	metrics  *Metrics
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openStore opens a temp store without registering cleanup, for tests that
// must close it before checking for goroutine leaks.
func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	return st
}

func newService(st *store.Store, registry prometheus.Registerer, opts ...Option) (*Service, *Metrics) {
	metrics := NewMetrics(registry)
	base := []Option{
		WithLogger(quietLogger()),
		WithClock(testutil.NewSteppingClock(time.Time{}, time.Second)),
		WithIDGenerator(testutil.NewSequentialIDs("id")),
		WithMetrics(metrics),
	}
	return New(SQLite(st), append(base, opts...)...), metrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := openStore(t)
	t.Cleanup(func() { st.Close() })

	registry := prometheus.NewRegistry()
	svc, metrics := newService(st, registry, opts...)
	return &fixture{svc: svc, st: st, registry: registry, metrics: metrics}
}

func chairmanID(partition ledger.PartitionID) string {
	return fmt.Sprintf("chair-%d", partition)
}

func (f *fixture) chairman(t *testing.T, partition ledger.PartitionID) string {
	t.Helper()
	id := chairmanID(partition)
	require.NoError(t, f.svc.RegisterActor(context.Background(), flagging.Actor{
		ID:          id,
		PartitionID: partition,
		Role:        flagging.RoleChairman,
	}))
	return id
}

func (f *fixture) citizens(t *testing.T, partition ledger.PartitionID, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("citizen-%d-%02d", partition, i)
		require.NoError(t, f.svc.RegisterActor(context.Background(), flagging.Actor{
			ID:          id,
			PartitionID: partition,
			Role:        flagging.RoleCitizen,
		}))
		ids = append(ids, id)
	}
	return ids
}

func testDraft(code string, partition ledger.PartitionID) ledger.Draft {
	return ledger.Draft{
		ProjectCode:           code,
		ProjectName:           "Road works " + code,
		Category:              ledger.CategoryInfrastructure,
		ImplementingAuthority: "Public Works Department",
		ResponsibleOfficial:   "A. Rahman",
		StartDate:             "2024-02-01",
		TotalAllocatedAmount:  decimal.RequireFromString("2500000.75"),
		PartitionID:           partition,
	}
}

// appendN registers the partition's chairman and appends n records.
func (f *fixture) appendN(t *testing.T, partition ledger.PartitionID, n int) []ledger.BudgetRecord {
	t.Helper()
	chair := f.chairman(t, partition)
	records := make([]ledger.BudgetRecord, 0, n)
	for i := 0; i < n; i++ {
		rec, err := f.svc.Append(context.Background(), chair, testDraft(fmt.Sprintf("P%d-%03d", partition, i), partition))
		require.NoError(t, err)
		records = append(records, rec)
	}
	return records
}
