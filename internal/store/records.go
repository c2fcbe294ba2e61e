package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/civicledger/internal/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is the repository view of the store, bound either to a transaction
// (Atomic, Snapshot) or to the database (Repo). It implements
// ledger.ChainRepository and flagging.Repository.
type Tx struct {
	q querier
}

const recordColumns = `
	seq, id, project_code, project_name, category, implementing_authority,
	responsible_official, approval_date, start_date, expected_completion_date,
	total_allocated_amount, status, partition_id, ward, creator_id,
	prev_hash, record_hash, created_at`

// Tail returns the hash and created_at of the partition's newest record, or
// the zero Tail for an empty partition. "Newest" uses the verifier's ordering.
func (t *Tx) Tail(ctx context.Context, partition ledger.PartitionID) (ledger.Tail, error) {
	var hash, createdAt string
	err := t.q.QueryRowContext(ctx, `
		SELECT record_hash, created_at FROM budget_records
		WHERE partition_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, int64(partition)).Scan(&hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Tail{}, nil
	}
	if err != nil {
		return ledger.Tail{}, fmt.Errorf("tail: %w", err)
	}

	ts, err := ledger.ParseTimestamp(createdAt)
	if err != nil {
		return ledger.Tail{}, fmt.Errorf("tail: parse created_at: %w", err)
	}
	return ledger.Tail{Hash: ledger.Hash(hash), CreatedAt: ts}, nil
}

// InsertRecord writes a sealed record and returns its id. A record whose
// project code is already taken fails with ledger.CodeInvalidDraft.
func (t *Tx) InsertRecord(ctx context.Context, rec ledger.BudgetRecord) (string, error) {
	var taken int
	if err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM budget_records WHERE project_code = ?`,
		rec.ProjectCode,
	).Scan(&taken); err != nil {
		return "", fmt.Errorf("insert record: check project code: %w", err)
	}
	if taken > 0 {
		return "", &ledger.Error{
			Code:        ledger.CodeInvalidDraft,
			Message:     fmt.Sprintf("project code %q already exists", rec.ProjectCode),
			PartitionID: rec.PartitionID,
		}
	}

	var prev sql.NullString
	if !rec.PrevHash.IsZero() {
		prev = sql.NullString{String: string(rec.PrevHash), Valid: true}
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO budget_records
		(id, project_code, project_name, category, implementing_authority,
		 responsible_official, approval_date, start_date, expected_completion_date,
		 total_allocated_amount, status, partition_id, ward, creator_id,
		 prev_hash, record_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.ProjectCode,
		rec.ProjectName,
		string(rec.Category),
		rec.ImplementingAuthority,
		rec.ResponsibleOfficial,
		rec.ApprovalDate,
		rec.StartDate,
		rec.ExpectedCompletionDate,
		rec.TotalAllocatedAmount.String(),
		string(rec.Status),
		int64(rec.PartitionID),
		rec.Ward,
		rec.CreatorID,
		prev,
		string(rec.RecordHash),
		ledger.FormatTimestamp(rec.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return rec.ID, nil
}

// ListRecords returns every record of the partition ordered by seq.
// Returns an empty slice (not nil) for an empty partition.
func (t *Tx) ListRecords(ctx context.Context, partition ledger.PartitionID) ([]ledger.BudgetRecord, error) {
	return t.queryRecords(ctx, `
		SELECT`+recordColumns+`
		FROM budget_records
		WHERE partition_id = ?
		ORDER BY seq ASC
	`, int64(partition))
}

// ListRecordsNewestFirst returns the partition's records newest first, the
// order dashboards show them in.
func (t *Tx) ListRecordsNewestFirst(ctx context.Context, partition ledger.PartitionID) ([]ledger.BudgetRecord, error) {
	return t.queryRecords(ctx, `
		SELECT`+recordColumns+`
		FROM budget_records
		WHERE partition_id = ?
		ORDER BY created_at DESC, seq DESC
	`, int64(partition))
}

// GetRecord returns one record or an error with ledger.CodeRecordNotFound.
func (t *Tx) GetRecord(ctx context.Context, recordID string) (ledger.BudgetRecord, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT`+recordColumns+`
		FROM budget_records
		WHERE id = ?
	`, recordID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.BudgetRecord{}, &ledger.Error{
			Code:     ledger.CodeRecordNotFound,
			Message:  "budget record not found",
			RecordID: recordID,
		}
	}
	if err != nil {
		return ledger.BudgetRecord{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (t *Tx) queryRecords(ctx context.Context, query string, args ...any) ([]ledger.BudgetRecord, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []ledger.BudgetRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (ledger.BudgetRecord, error) {
	var (
		rec       ledger.BudgetRecord
		category  string
		status    string
		partition int64
		amount    string
		prev      sql.NullString
		hash      string
		createdAt string
	)
	if err := s.Scan(
		&rec.Seq, &rec.ID, &rec.ProjectCode, &rec.ProjectName, &category,
		&rec.ImplementingAuthority, &rec.ResponsibleOfficial, &rec.ApprovalDate,
		&rec.StartDate, &rec.ExpectedCompletionDate, &amount, &status,
		&partition, &rec.Ward, &rec.CreatorID, &prev, &hash, &createdAt,
	); err != nil {
		return ledger.BudgetRecord{}, err
	}

	rec.Category = ledger.Category(category)
	rec.Status = ledger.Status(status)
	rec.PartitionID = ledger.PartitionID(partition)
	rec.RecordHash = ledger.Hash(hash)
	if prev.Valid {
		rec.PrevHash = ledger.Hash(prev.String)
	}

	var err error
	if rec.TotalAllocatedAmount, err = parseDecimal(amount); err != nil {
		return ledger.BudgetRecord{}, fmt.Errorf("record %s: amount: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = ledger.ParseTimestamp(createdAt); err != nil {
		return ledger.BudgetRecord{}, fmt.Errorf("record %s: created_at: %w", rec.ID, err)
	}
	return rec, nil
}
