package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/civicledger/internal/ledger"
)

func TestInsertRecord_RoundTripPreservesHash(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestRecord("rec-1", "PC-1", 7, "", 1500*time.Millisecond)
	rec.Ward = "Kibera Ward 3"

	id, err := s.Repo().InsertRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", id)

	got, err := s.Repo().GetRecord(ctx, "rec-1")
	require.NoError(t, err)

	assert.Equal(t, rec.ProjectCode, got.ProjectCode)
	assert.Equal(t, rec.Ward, got.Ward)
	assert.Equal(t, ledger.PartitionID(7), got.PartitionID)
	assert.True(t, rec.TotalAllocatedAmount.Equal(got.TotalAllocatedAmount))
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.IsGenesis())
	assert.Equal(t, rec.RecordHash, got.RecordHash)
	assert.Equal(t, got.RecordHash, got.Recompute(), "stored content must reproduce the stored hash")
	assert.Positive(t, got.Seq)
}

func TestInsertRecord_DuplicateProjectCode(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestRecord("rec-1", "PC-1", 1, "", 0)
	_, err := s.Repo().InsertRecord(ctx, first)
	require.NoError(t, err)

	second := createTestRecord("rec-2", "PC-1", 1, first.RecordHash, time.Second)
	_, err = s.Repo().InsertRecord(ctx, second)
	require.ErrorIs(t, err, ledger.ErrInvalidDraft)
}

func TestInsertRecord_ForkRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	records := insertChain(t, s, 1, 2)

	// A second successor of the genesis record.
	fork := createTestRecord("rec-fork", "PC-fork", 1, records[0].RecordHash, 5*time.Second)
	_, err := s.Repo().InsertRecord(ctx, fork)
	require.Error(t, err)

	// A second genesis record.
	genesis := createTestRecord("rec-genesis", "PC-genesis", 1, "", 6*time.Second)
	_, err = s.Repo().InsertRecord(ctx, genesis)
	require.Error(t, err)

	// Genesis in another partition is fine.
	other := createTestRecord("rec-other", "PC-other", 2, "", 6*time.Second)
	_, err = s.Repo().InsertRecord(ctx, other)
	require.NoError(t, err)
}

func TestTail(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tail, err := s.Repo().Tail(ctx, 1)
	require.NoError(t, err)
	assert.True(t, tail.IsZero(), "empty partition has no tail")

	records := insertChain(t, s, 1, 3)
	tail, err = s.Repo().Tail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, records[2].RecordHash, tail.Hash)
	assert.True(t, records[2].CreatedAt.Equal(tail.CreatedAt), "tail created_at = %v, want %v", tail.CreatedAt, records[2].CreatedAt)

	tail, err = s.Repo().Tail(ctx, 2)
	require.NoError(t, err)
	assert.True(t, tail.IsZero(), "partitions do not share tails")
}

func TestTail_EqualTimestampsUseSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestRecord("rec-b", "PC-b", 1, "", 0)
	_, err := s.Repo().InsertRecord(ctx, first)
	require.NoError(t, err)
	second := createTestRecord("rec-a", "PC-a", 1, first.RecordHash, 0)
	_, err = s.Repo().InsertRecord(ctx, second)
	require.NoError(t, err)

	tail, err := s.Repo().Tail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, second.RecordHash, tail.Hash)
}

func TestListRecords(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.Repo().ListRecords(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	records := insertChain(t, s, 1, 3)
	insertChain(t, s, 2, 2)

	got, err := s.Repo().ListRecords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range records {
		assert.Equal(t, records[i].ID, got[i].ID)
		assert.Equal(t, records[i].PrevHash, got[i].PrevHash)
	}

	newest, err := s.Repo().ListRecordsNewestFirst(ctx, 1)
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, records[2].ID, newest[0].ID)
	assert.Equal(t, records[0].ID, newest[2].ID)
}

func TestListRecords_VerifiesClean(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insertChain(t, s, 1, 4)

	report, err := ledger.Verify(ctx, s.Repo(), 1)
	require.NoError(t, err)
	assert.True(t, report.Valid, "violations: %v", report.Violations)
	assert.Equal(t, 4, report.Records)
}

func TestGetRecord_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Repo().GetRecord(context.Background(), "missing")
	require.ErrorIs(t, err, ledger.ErrRecordNotFound)
	assert.Equal(t, ledger.CodeRecordNotFound, ledger.CodeOf(err))
}
