package service

import (
	"context"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
	"github.com/roach88/civicledger/internal/store"
)

// Repository is the full set of storage operations the service uses.
type Repository interface {
	ledger.ChainRepository
	flagging.Repository

	PutActor(ctx context.Context, actor flagging.Actor) error
	HasFlagged(ctx context.Context, recordID, userID string) (bool, error)
	ListFlagsByUser(ctx context.Context, userID string) ([]flagging.Flag, error)
	ListPendingEscalations(ctx context.Context, partition ledger.PartitionID) ([]flagging.Escalation, error)
	ListRecordsNewestFirst(ctx context.Context, partition ledger.PartitionID) ([]ledger.BudgetRecord, error)
}

// Backend runs callbacks against a Repository inside transactions.
//
// Atomic commits when fn returns nil and rolls back otherwise. Snapshot
// gives fn a consistent read view and never commits.
type Backend interface {
	Atomic(ctx context.Context, fn func(Repository) error) error
	Snapshot(ctx context.Context, fn func(Repository) error) error
}

var _ Repository = (*store.Tx)(nil)

// SQLite adapts a store.Store to Backend.
func SQLite(s *store.Store) Backend {
	return sqliteBackend{s: s}
}

type sqliteBackend struct {
	s *store.Store
}

func (b sqliteBackend) Atomic(ctx context.Context, fn func(Repository) error) error {
	return b.s.Atomic(ctx, func(tx *store.Tx) error { return fn(tx) })
}

func (b sqliteBackend) Snapshot(ctx context.Context, fn func(Repository) error) error {
	return b.s.Snapshot(ctx, func(tx *store.Tx) error { return fn(tx) })
}
