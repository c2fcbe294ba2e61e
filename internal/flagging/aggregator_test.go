package flagging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/civicledger/internal/ledger"
	"github.com/roach88/civicledger/internal/testutil"
)

func testAggregator() *Aggregator {
	a := NewAggregator(nil)
	a.Clock = testutil.NewSteppingClock(time.Time{}, time.Second)
	a.IDs = testutil.NewSequentialIDs("flag")
	return a
}

func TestRatio(t *testing.T) {
	tests := []struct {
		flags, population int
		want              string
	}{
		{0, 10, "0.00"},
		{5, 10, "50.00"},
		{6, 10, "60.00"},
		{1, 3, "33.33"},
		{2, 3, "66.67"},
		{1, 6, "16.67"},
		{1, 8, "12.50"},
		{1, 0, "100.00"},
		{3, 0, "300.00"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.flags, tt.population), func(t *testing.T) {
			assert.Equal(t, tt.want, Ratio(tt.flags, tt.population).StringFixed(2))
		})
	}
}

func TestEligiblePopulation(t *testing.T) {
	assert.Equal(t, 1, EligiblePopulation(0))
	assert.Equal(t, 1, EligiblePopulation(1))
	assert.Equal(t, 12, EligiblePopulation(12))
}

func TestAggregator_Add(t *testing.T) {
	repo := newMemRepo()
	repo.addRecord("rec-1", 1)
	for i := 1; i <= 4; i++ {
		repo.addActor(fmt.Sprintf("c%d", i), 1, RoleCitizen)
	}
	repo.addActor("chair", 1, RoleChairman)

	a := testAggregator()
	tally, err := a.Add(context.Background(), repo, "rec-1", "c1", "inflated")
	require.NoError(t, err)
	assert.Equal(t, Tally{FlagCount: 1, Population: 4, Ratio: tally.Ratio}, tally)
	assert.Equal(t, "25.00", tally.Ratio.StringFixed(2))

	require.Len(t, repo.flags, 1)
	flag := repo.flags[0]
	assert.Equal(t, "flag-0001", flag.ID)
	assert.Equal(t, "inflated", flag.Reason)
	assert.Equal(t, testutil.Epoch, flag.CreatedAt)

	// Non-citizens may flag but are not counted in the population.
	tally, err = a.Add(context.Background(), repo, "rec-1", "chair", "")
	require.NoError(t, err)
	assert.Equal(t, 2, tally.FlagCount)
	assert.Equal(t, 4, tally.Population)
	assert.Equal(t, DefaultReason, repo.flags[1].Reason)
}

func TestAggregator_AddRejections(t *testing.T) {
	repo := newMemRepo()
	repo.addRecord("rec-1", 1)
	repo.addActor("c1", 1, RoleCitizen)
	repo.addActor("outsider", 2, RoleCitizen)

	a := testAggregator()
	ctx := context.Background()

	_, err := a.Add(ctx, repo, "missing", "c1", "")
	require.ErrorIs(t, err, ledger.ErrRecordNotFound)

	_, err = a.Add(ctx, repo, "rec-1", "ghost", "")
	require.ErrorIs(t, err, ledger.ErrActorNotFound)

	_, err = a.Add(ctx, repo, "rec-1", "outsider", "")
	require.ErrorIs(t, err, ledger.ErrPartitionMismatch)

	_, err = a.Add(ctx, repo, "rec-1", "c1", "")
	require.NoError(t, err)
	_, err = a.Add(ctx, repo, "rec-1", "c1", "")
	require.ErrorIs(t, err, ledger.ErrDuplicateFlag)

	assert.Len(t, repo.flags, 1, "rejections never write")
}

func TestAggregator_Tally(t *testing.T) {
	repo := newMemRepo()
	repo.addRecord("rec-1", 1)
	repo.addActor("c1", 1, RoleCitizen)
	repo.addActor("c2", 1, RoleCitizen)

	a := testAggregator()
	tally, err := a.Tally(context.Background(), repo, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, 0, tally.FlagCount)
	assert.Equal(t, 2, tally.Population)
	assert.True(t, tally.Ratio.IsZero())
	assert.Empty(t, repo.flags)
}
