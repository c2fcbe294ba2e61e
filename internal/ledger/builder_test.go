package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/civicledger/internal/testutil"
)

// memChain is an in-memory ChainRepository.
type memChain struct {
	records   []BudgetRecord
	tailErr   error
	insertErr error
}

func (m *memChain) Tail(_ context.Context, partition PartitionID) (Tail, error) {
	if m.tailErr != nil {
		return Tail{}, m.tailErr
	}
	var tail Tail
	for _, r := range m.records {
		if r.PartitionID == partition {
			tail = Tail{Hash: r.RecordHash, CreatedAt: r.CreatedAt}
		}
	}
	return tail, nil
}

func (m *memChain) InsertRecord(_ context.Context, rec BudgetRecord) (string, error) {
	if m.insertErr != nil {
		return "", m.insertErr
	}
	rec.Seq = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return rec.ID, nil
}

func (m *memChain) ListRecords(_ context.Context, partition PartitionID) ([]BudgetRecord, error) {
	out := []BudgetRecord{}
	for _, r := range m.records {
		if r.PartitionID == partition {
			out = append(out, r)
		}
	}
	return out, nil
}

func testBuilder() *Builder {
	b := NewBuilder(nil)
	b.Clock = testutil.NewSteppingClock(time.Time{}, time.Second)
	b.IDs = testutil.NewSequentialIDs("rec")
	return b
}

func TestBuilder_AppendLinksRecords(t *testing.T) {
	ctx := context.Background()
	repo := &memChain{}
	b := testBuilder()

	first, err := b.Append(ctx, repo, goldenDraft())
	require.NoError(t, err)
	assert.Equal(t, "rec-0001", first.ID)
	assert.True(t, first.IsGenesis())
	assert.Equal(t, testutil.Epoch, first.CreatedAt)
	assert.Equal(t, first.Recompute(), first.RecordHash)

	d := goldenDraft()
	d.ProjectCode = "KRB-2024-018"
	second, err := b.Append(ctx, repo, d)
	require.NoError(t, err)
	assert.Equal(t, first.RecordHash, second.PrevHash)
	assert.Equal(t, testutil.Epoch.Add(time.Second), second.CreatedAt)

	other := goldenDraft()
	other.ProjectCode = "OTHER-1"
	other.PartitionID = 7
	third, err := b.Append(ctx, repo, other)
	require.NoError(t, err)
	assert.True(t, third.IsGenesis(), "a new partition starts a new chain")

	report, err := Verify(ctx, repo, 42)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Records)
}

func TestBuilder_AppendTruncatesCreatedAt(t *testing.T) {
	repo := &memChain{}
	b := testBuilder()
	b.Clock = testutil.FrozenClock{At: time.Date(2024, 5, 5, 5, 5, 5, 987654321, time.UTC)}

	rec, err := b.Append(context.Background(), repo, goldenDraft())
	require.NoError(t, err)
	assert.Equal(t, 987000000, rec.CreatedAt.Nanosecond())
	assert.Equal(t, rec.RecordHash, rec.Recompute())
}

func TestBuilder_AppendNeverStampsBeforeTail(t *testing.T) {
	ctx := context.Background()
	repo := &memChain{}
	b := testBuilder()
	b.Clock = testutil.NewSteppingClock(time.Time{}, -time.Second)

	first, err := b.Append(ctx, repo, goldenDraft())
	require.NoError(t, err)

	d := goldenDraft()
	d.ProjectCode = "KRB-2024-018"
	second, err := b.Append(ctx, repo, d)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "a clock behind the tail reuses the tail's timestamp")
	assert.Equal(t, first.RecordHash, second.PrevHash)
	assert.Equal(t, second.Recompute(), second.RecordHash)

	report, err := Verify(ctx, repo, second.PartitionID)
	require.NoError(t, err)
	assert.True(t, report.Valid, "violations: %v", report.Violations)
}

func TestBuilder_AppendDefaultsStatus(t *testing.T) {
	d := goldenDraft()
	d.Status = ""

	rec, err := testBuilder().Append(context.Background(), &memChain{}, d)
	require.NoError(t, err)
	assert.Equal(t, StatusPlanned, rec.Status)
}

func TestBuilder_AppendRejectsInvalidDraft(t *testing.T) {
	repo := &memChain{}
	d := goldenDraft()
	d.TotalAllocatedAmount = decimal.NewFromInt(-5)

	_, err := testBuilder().Append(context.Background(), repo, d)
	require.ErrorIs(t, err, ErrInvalidDraft)
	assert.Empty(t, repo.records)
}

func TestBuilder_AppendWrapsStorageErrors(t *testing.T) {
	boom := errors.New("disk full")

	_, err := testBuilder().Append(context.Background(), &memChain{tailErr: boom}, goldenDraft())
	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, boom)

	_, err = testBuilder().Append(context.Background(), &memChain{insertErr: boom}, goldenDraft())
	require.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "insert record")
}

func TestBuilder_AppendKeepsCodedRepositoryErrors(t *testing.T) {
	taken := &Error{Code: CodeInvalidDraft, Message: "project code taken"}

	_, err := testBuilder().Append(context.Background(), &memChain{insertErr: taken}, goldenDraft())
	require.ErrorIs(t, err, ErrInvalidDraft)
	assert.NotErrorIs(t, err, ErrStorage)
}
