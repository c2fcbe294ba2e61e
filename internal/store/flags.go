package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
)

// InsertFlag stores a flag. Uses ON CONFLICT(record_id, user_id) DO NOTHING
// and reports a skipped insert as ledger.CodeDuplicateFlag, so a duplicate
// leaves the table untouched.
func (t *Tx) InsertFlag(ctx context.Context, f flagging.Flag) (string, error) {
	result, err := t.q.ExecContext(ctx, `
		INSERT INTO flags (id, record_id, user_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id, user_id) DO NOTHING
	`, f.ID, f.RecordID, f.UserID, f.Reason, ledger.FormatTimestamp(f.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("insert flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert flag: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return "", &ledger.Error{
			Code:     ledger.CodeDuplicateFlag,
			Message:  "record already flagged by this user",
			RecordID: f.RecordID,
			UserID:   f.UserID,
		}
	}
	return f.ID, nil
}

// CountFlags counts flags on a record.
func (t *Tx) CountFlags(ctx context.Context, recordID string) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM flags WHERE record_id = ?
	`, recordID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count flags: %w", err)
	}
	return n, nil
}

// HasFlagged reports whether userID has flagged recordID.
func (t *Tx) HasFlagged(ctx context.Context, recordID, userID string) (bool, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM flags WHERE record_id = ? AND user_id = ?
	`, recordID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has flagged: %w", err)
	}
	return n > 0, nil
}

// ListFlags returns a record's flags, newest first.
func (t *Tx) ListFlags(ctx context.Context, recordID string) ([]flagging.Flag, error) {
	return t.queryFlags(ctx, `
		SELECT id, record_id, user_id, reason, created_at
		FROM flags
		WHERE record_id = ?
		ORDER BY created_at DESC, id DESC
	`, recordID)
}

// ListFlagsByUser returns every flag raised by userID, newest first.
func (t *Tx) ListFlagsByUser(ctx context.Context, userID string) ([]flagging.Flag, error) {
	return t.queryFlags(ctx, `
		SELECT id, record_id, user_id, reason, created_at
		FROM flags
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
}

func (t *Tx) queryFlags(ctx context.Context, query string, args ...any) ([]flagging.Flag, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}
	defer rows.Close()

	flags := []flagging.Flag{}
	for rows.Next() {
		var (
			f         flagging.Flag
			createdAt string
		)
		if err := rows.Scan(&f.ID, &f.RecordID, &f.UserID, &f.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		if f.CreatedAt, err = ledger.ParseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("flag %s: created_at: %w", f.ID, err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flags: %w", err)
	}
	return flags, nil
}

// PendingEscalation returns the record's pending escalation, or nil.
func (t *Tx) PendingEscalation(ctx context.Context, recordID string) (*flagging.Escalation, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT id, record_id, flag_count, flag_ratio, status, triggered_at
		FROM escalations
		WHERE record_id = ? AND status = ?
	`, recordID, string(flagging.StatusPending))

	esc, err := scanEscalation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending escalation: %w", err)
	}
	return &esc, nil
}

// InsertEscalation stores a new escalation. The partial unique index on
// pending escalations rejects a second pending row for the same record.
func (t *Tx) InsertEscalation(ctx context.Context, esc flagging.Escalation) (string, error) {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO escalations (id, record_id, flag_count, flag_ratio, status, triggered_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		esc.ID,
		esc.RecordID,
		esc.FlagCount,
		esc.FlagRatio.String(),
		string(esc.Status),
		ledger.FormatTimestamp(esc.TriggeredAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert escalation: %w", err)
	}
	return esc.ID, nil
}

// ListPendingEscalations returns the pending escalations of a partition,
// most recently triggered first.
func (t *Tx) ListPendingEscalations(ctx context.Context, partition ledger.PartitionID) ([]flagging.Escalation, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT e.id, e.record_id, e.flag_count, e.flag_ratio, e.status, e.triggered_at
		FROM escalations e
		JOIN budget_records r ON r.id = e.record_id
		WHERE r.partition_id = ? AND e.status = ?
		ORDER BY e.triggered_at DESC, e.seq DESC
	`, int64(partition), string(flagging.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	escalations := []flagging.Escalation{}
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		escalations = append(escalations, esc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalations: %w", err)
	}
	return escalations, nil
}

// CountEscalations counts all escalation rows for a record, pending or not.
func (t *Tx) CountEscalations(ctx context.Context, recordID string) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM escalations WHERE record_id = ?
	`, recordID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count escalations: %w", err)
	}
	return n, nil
}

func scanEscalation(s scanner) (flagging.Escalation, error) {
	var (
		esc         flagging.Escalation
		ratio       string
		status      string
		triggeredAt string
	)
	if err := s.Scan(&esc.ID, &esc.RecordID, &esc.FlagCount, &ratio, &status, &triggeredAt); err != nil {
		return flagging.Escalation{}, err
	}
	esc.Status = flagging.EscalationStatus(status)

	var err error
	if esc.FlagRatio, err = parseDecimal(ratio); err != nil {
		return flagging.Escalation{}, fmt.Errorf("escalation %s: flag_ratio: %w", esc.ID, err)
	}
	if esc.TriggeredAt, err = ledger.ParseTimestamp(triggeredAt); err != nil {
		return flagging.Escalation{}, fmt.Errorf("escalation %s: triggered_at: %w", esc.ID, err)
	}
	return esc, nil
}
