package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
)

var baseTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDraft creates a draft with every required field set.
func createTestDraft(code string, partition ledger.PartitionID) ledger.Draft {
	return ledger.Draft{
		ProjectCode:           code,
		ProjectName:           "Borehole " + code,
		Category:              ledger.CategorySanitation,
		ImplementingAuthority: "County Water Board",
		ResponsibleOfficial:   "J. Mwangi",
		ApprovalDate:          "2024-01-15",
		TotalAllocatedAmount:  decimal.RequireFromString("125000.50"),
		Status:                ledger.StatusPlanned,
		PartitionID:           partition,
		CreatorID:             "chair-1",
	}
}

// createTestRecord seals a record linked to prev, stamped at baseTime+offset.
func createTestRecord(id, code string, partition ledger.PartitionID, prev ledger.Hash, offset time.Duration) ledger.BudgetRecord {
	rec := ledger.BudgetRecord{
		Draft:     createTestDraft(code, partition),
		ID:        id,
		PrevHash:  prev,
		CreatedAt: baseTime.Add(offset),
	}
	rec.Seal()
	return rec
}

// insertChain appends n linked records to partition and returns them.
func insertChain(t *testing.T, s *Store, partition ledger.PartitionID, n int) []ledger.BudgetRecord {
	t.Helper()
	ctx := context.Background()

	var prev ledger.Hash
	records := make([]ledger.BudgetRecord, 0, n)
	for i := 0; i < n; i++ {
		id := recordID(partition, i)
		rec := createTestRecord(id, "PC-"+id, partition, prev, time.Duration(i)*time.Second)
		if _, err := s.Repo().InsertRecord(ctx, rec); err != nil {
			t.Fatalf("InsertRecord(%s) failed: %v", id, err)
		}
		records = append(records, rec)
		prev = rec.RecordHash
	}
	return records
}

func recordID(partition ledger.PartitionID, i int) string {
	return fmt.Sprintf("rec-%d-%d", partition, i)
}

// putCitizens registers n citizens in partition and returns their ids.
func putCitizens(t *testing.T, s *Store, partition ledger.PartitionID, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		a := flagging.Actor{
			ID:          citizenID(partition, i),
			PartitionID: partition,
			Role:        flagging.RoleCitizen,
		}
		if err := s.Repo().PutActor(context.Background(), a); err != nil {
			t.Fatalf("PutActor(%s) failed: %v", a.ID, err)
		}
		ids = append(ids, a.ID)
	}
	return ids
}

func citizenID(partition ledger.PartitionID, i int) string {
	return fmt.Sprintf("citizen-%d-%d", partition, i)
}
