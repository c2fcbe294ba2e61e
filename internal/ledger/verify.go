package ledger

import (
	"cmp"
	"context"
	"slices"
)

// Reason names a chain integrity finding.
type Reason string

const (
	ReasonExpectedGenesis Reason = "expected genesis"
	ReasonBrokenLink      Reason = "broken link"
	ReasonHashMismatch    Reason = "hash mismatch"
)

// Violation is one integrity finding against one record.
type Violation struct {
	RecordID string `json:"record_id"`
	Reason   Reason `json:"reason"`
}

// Report is the outcome of verifying a partition. Integrity problems are
// reported here, never as errors.
type Report struct {
	Partition  PartitionID `json:"partition_id"`
	Valid      bool        `json:"valid"`
	Records    int         `json:"records"`
	Violations []Violation `json:"violations"`
}

// Verify loads the partition's records and checks every link and hash.
// It only reads; the caller supplies a repository bound to a consistent
// snapshot. The only error is a storage failure.
func Verify(ctx context.Context, repo ChainRepository, partition PartitionID) (Report, error) {
	records, err := repo.ListRecords(ctx, partition)
	if err != nil {
		return Report{}, WrapStorage("list records", err)
	}
	report := VerifyRecords(records)
	report.Partition = partition
	return report, nil
}

// VerifyRecords checks an already loaded chain. The input is not modified.
//
// Records are ordered by created_at, ties by insertion seq, then id. The
// first record must be a genesis record, each following record must link to
// its predecessor's stored hash, and every stored hash must match the hash
// recomputed from content. All violations are collected; checking never
// stops early.
func VerifyRecords(records []BudgetRecord) Report {
	ordered := slices.Clone(records)
	SortChain(ordered)

	report := Report{
		Records:    len(ordered),
		Violations: []Violation{},
	}
	if len(ordered) > 0 {
		report.Partition = ordered[0].PartitionID
	}

	for i, rec := range ordered {
		if i == 0 {
			if !rec.IsGenesis() {
				report.Violations = append(report.Violations, Violation{RecordID: rec.ID, Reason: ReasonExpectedGenesis})
			}
		} else if rec.PrevHash != ordered[i-1].RecordHash {
			report.Violations = append(report.Violations, Violation{RecordID: rec.ID, Reason: ReasonBrokenLink})
		}

		if rec.Recompute() != rec.RecordHash {
			report.Violations = append(report.Violations, Violation{RecordID: rec.ID, Reason: ReasonHashMismatch})
		}
	}

	report.Valid = len(report.Violations) == 0
	return report
}

// SortChain orders records oldest first: created_at, then seq, then id.
// Equal timestamps are possible when the clock is coarse; seq keeps the
// order deterministic.
func SortChain(records []BudgetRecord) {
	slices.SortStableFunc(records, func(a, b BudgetRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
