package ledger

import (
	"context"
	"log/slog"
)

// Builder links new records onto a partition's chain.
//
// Builder holds no per-partition state. Atomicity of read-tail-then-insert is
// the caller's job: run Append inside a transaction (or lock) scoped to the
// draft's partition, otherwise two appends can read the same tail and fork
// the chain.
type Builder struct {
	Clock  Clock
	IDs    IDGenerator
	Logger *slog.Logger
}

// NewBuilder returns a Builder using the system clock and UUIDv7 ids.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		Clock:  SystemClock{},
		IDs:    UUIDv7Generator{},
		Logger: logger,
	}
}

// Append seals draft as the new tail of its partition's chain:
//
//  1. fetch the partition's tail (zero if empty)
//  2. stamp created_at, never earlier than the tail's
//  3. record_hash = SHA-256(Encode(draft, tail, created_at))
//  4. persist the record
//
// Returns an *Error with CodeInvalidDraft for a bad draft and CodeStorage
// when the repository fails. Append is not idempotent; a retry after a
// storage failure may append twice if the first insert actually landed.
func (b *Builder) Append(ctx context.Context, repo ChainRepository, draft Draft) (BudgetRecord, error) {
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return BudgetRecord{}, err
	}

	tail, err := repo.Tail(ctx, draft.PartitionID)
	if err != nil {
		return BudgetRecord{}, WrapStorage("read chain tail", err)
	}

	// A clock that stepped backward would otherwise sort the new record
	// ahead of the one it links to. Equal timestamps fall back to seq.
	createdAt := CanonicalTime(b.Clock.Now())
	if !tail.IsZero() && createdAt.Before(tail.CreatedAt) {
		b.logger().Warn("clock behind chain tail",
			"partition", draft.PartitionID,
			"now", FormatTimestamp(createdAt),
			"tail_created_at", FormatTimestamp(tail.CreatedAt),
		)
		createdAt = tail.CreatedAt
	}

	rec := BudgetRecord{
		Draft:     draft,
		ID:        b.IDs.NewID(),
		PrevHash:  tail.Hash,
		CreatedAt: createdAt,
	}
	rec.Seal()

	id, err := repo.InsertRecord(ctx, rec)
	if err != nil {
		return BudgetRecord{}, WrapStorage("insert record", err)
	}
	rec.ID = id

	b.logger().Debug("record sealed",
		"partition", rec.PartitionID,
		"record_id", rec.ID,
		"prev_hash", rec.PrevHash.Short(),
		"record_hash", rec.RecordHash.Short(),
	)

	return rec, nil
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}
