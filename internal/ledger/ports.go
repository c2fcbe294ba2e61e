package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChainRepository is the storage the chain builder and verifier need.
// Implementations must be called inside a transaction that makes
// Tail + InsertRecord atomic for the partition.
type ChainRepository interface {
	// Tail returns the partition's latest record in verification order, or
	// the zero Tail if the partition is empty.
	Tail(ctx context.Context, partition PartitionID) (Tail, error)

	// InsertRecord persists a sealed record and returns its id.
	InsertRecord(ctx context.Context, rec BudgetRecord) (string, error)

	// ListRecords returns every record of the partition in any order.
	ListRecords(ctx context.Context, partition PartitionID) ([]BudgetRecord, error)
}

// Tail identifies the end of a partition's chain.
type Tail struct {
	Hash      Hash
	CreatedAt time.Time
}

// IsZero reports whether the partition had no records.
func (t Tail) IsZero() bool {
	return t.Hash.IsZero()
}

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// IDGenerator produces identifiers for new rows.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a new hyphenated UUIDv7. Panics only if the system random
// source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
