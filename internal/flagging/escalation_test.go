package flagging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/civicledger/internal/ledger"
	"github.com/roach88/civicledger/internal/testutil"
)

func testEngine(threshold int64) *Engine {
	e := NewEngine(decimal.NewFromInt(threshold), nil)
	e.Clock = testutil.NewSteppingClock(time.Time{}, time.Second)
	e.IDs = testutil.NewSequentialIDs("esc")
	return e
}

func tallyOf(flags, population int) Tally {
	return Tally{FlagCount: flags, Population: population, Ratio: Ratio(flags, population)}
}

func TestEngine_Crosses(t *testing.T) {
	e := testEngine(50)
	assert.False(t, e.Crosses(decimal.RequireFromString("49.99")))
	assert.False(t, e.Crosses(decimal.RequireFromString("50.00")), "equal is not above")
	assert.True(t, e.Crosses(decimal.RequireFromString("50.01")))
}

func TestEngine_EvaluateBelowThreshold(t *testing.T) {
	repo := newMemRepo()
	e := testEngine(50)

	d, err := e.Evaluate(context.Background(), repo, "rec-1", tallyOf(5, 10))
	require.NoError(t, err)
	assert.Equal(t, Decision{}, d)
	assert.Empty(t, repo.escalations)
}

func TestEngine_EvaluateCreatesOnce(t *testing.T) {
	repo := newMemRepo()
	e := testEngine(50)
	ctx := context.Background()

	d, err := e.Evaluate(ctx, repo, "rec-1", tallyOf(6, 10))
	require.NoError(t, err)
	assert.True(t, d.Escalated)
	assert.True(t, d.Created)
	require.NotNil(t, d.Escalation)
	assert.Equal(t, Escalation{
		ID:          "esc-0001",
		RecordID:    "rec-1",
		FlagCount:   6,
		FlagRatio:   d.Escalation.FlagRatio,
		Status:      StatusPending,
		TriggeredAt: testutil.Epoch,
	}, *d.Escalation)
	assert.Equal(t, "60.00", d.Escalation.FlagRatio.StringFixed(2))

	again, err := e.Evaluate(ctx, repo, "rec-1", tallyOf(7, 10))
	require.NoError(t, err)
	assert.True(t, again.Escalated)
	assert.False(t, again.Created)
	assert.Equal(t, "esc-0001", again.Escalation.ID)
	assert.Equal(t, 6, again.Escalation.FlagCount, "existing escalation is not updated")
	assert.Len(t, repo.escalations, 1)
}

func TestEngine_EvaluateAfterReviewCreatesNew(t *testing.T) {
	repo := newMemRepo()
	repo.escalations = append(repo.escalations, Escalation{ID: "old", RecordID: "rec-1", Status: StatusReviewed})
	e := testEngine(50)

	d, err := e.Evaluate(context.Background(), repo, "rec-1", tallyOf(6, 10))
	require.NoError(t, err)
	assert.True(t, d.Created)
	assert.Len(t, repo.escalations, 2)
}

func TestEngine_EvaluateStorageFailure(t *testing.T) {
	repo := newMemRepo()
	repo.insertEscalationErr = errors.New("constraint failed")

	_, err := testEngine(50).Evaluate(context.Background(), repo, "rec-1", tallyOf(6, 10))
	require.ErrorIs(t, err, ledger.ErrStorage)
}
