package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
)

func TestAddFlag_ConcurrentCrossingCreatesOneEscalation(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := openStore(t)
	defer st.Close()
	svc, _ := newService(st, prometheus.NewRegistry())
	f := &fixture{svc: svc, st: st}
	ctx := context.Background()

	rec := f.appendN(t, 1, 1)[0]
	const k = 20
	citizens := f.citizens(t, 1, k)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		escalated = make(map[string]int)
		errs      []error
	)
	for _, id := range citizens {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			res, err := svc.AddFlag(ctx, rec.ID, userID, "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Escalation != nil {
				escalated[res.Escalation.ID]++
			}
		}(id)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, escalated, 1, "every escalated result names the same escalation")

	n, err := st.Repo().CountEscalations(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	flags, err := st.Repo().CountFlags(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, k, flags)

	pending, err := st.Repo().PendingEscalation(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, 11, pending.FlagCount, "escalation triggers at the first flag above 50%")

	assert.Zero(t, svc.records.size(), "record locks are released")
}

func TestAddFlag_ConcurrentDuplicates(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := openStore(t)
	defer st.Close()
	svc, _ := newService(st, nil)
	f := &fixture{svc: svc, st: st}
	ctx := context.Background()

	rec := f.appendN(t, 1, 1)[0]
	citizen := f.citizens(t, 1, 1)[0]

	const k = 10
	results := make(chan error, k)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddFlag(ctx, rec.ID, citizen, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case ledger.CodeOf(err) == ledger.CodeDuplicateFlag:
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, k-1, dup)
}

func TestAppend_ConcurrentAppendsFormOneChain(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := openStore(t)
	defer st.Close()
	svc, _ := newService(st, nil)
	ctx := context.Background()

	for _, p := range []ledger.PartitionID{1, 2} {
		require.NoError(t, svc.RegisterActor(ctx, flagging.Actor{ID: chairmanID(p), PartitionID: p, Role: flagging.RoleChairman}))
	}

	const k = 25
	var wg sync.WaitGroup
	errs := make(chan error, 2*k)
	for i := 0; i < k; i++ {
		for _, p := range []ledger.PartitionID{1, 2} {
			wg.Add(1)
			go func(i int, p ledger.PartitionID) {
				defer wg.Done()
				_, err := svc.Append(ctx, chairmanID(p), testDraft(fmt.Sprintf("C%d-%03d", p, i), p))
				errs <- err
			}(i, p)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, p := range []ledger.PartitionID{1, 2} {
		report, err := svc.Verify(ctx, p)
		require.NoError(t, err)
		assert.True(t, report.Valid, "partition %d violations: %v", p, report.Violations)
		assert.Equal(t, k, report.Records)
	}
	assert.Zero(t, svc.partitions.size(), "partition locks are released")
}
