package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
)

// PutActor inserts or replaces an actor.
func (t *Tx) PutActor(ctx context.Context, a flagging.Actor) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO actors (id, partition_id, role, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			partition_id = excluded.partition_id,
			role = excluded.role,
			name = excluded.name
	`, a.ID, int64(a.PartitionID), string(a.Role), a.Name)
	if err != nil {
		return fmt.Errorf("put actor: %w", err)
	}
	return nil
}

// GetActor returns an actor or an error with ledger.CodeActorNotFound.
func (t *Tx) GetActor(ctx context.Context, actorID string) (flagging.Actor, error) {
	var (
		a         flagging.Actor
		partition int64
		role      string
	)
	err := t.q.QueryRowContext(ctx, `
		SELECT id, partition_id, role, name FROM actors WHERE id = ?
	`, actorID).Scan(&a.ID, &partition, &role, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return flagging.Actor{}, &ledger.Error{
			Code:    ledger.CodeActorNotFound,
			Message: "actor not found",
			UserID:  actorID,
		}
	}
	if err != nil {
		return flagging.Actor{}, fmt.Errorf("get actor: %w", err)
	}
	a.PartitionID = ledger.PartitionID(partition)
	a.Role = flagging.Role(role)
	return a, nil
}

// CountRole counts actors with role in partition.
func (t *Tx) CountRole(ctx context.Context, partition ledger.PartitionID, role flagging.Role) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM actors WHERE partition_id = ? AND role = ?
	`, int64(partition), string(role)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count role: %w", err)
	}
	return n, nil
}
