package flagging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/civicledger/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// EligiblePopulation clamps a citizen count to at least one so the ratio is
// always defined.
func EligiblePopulation(citizens int) int {
	return max(1, citizens)
}

// Ratio returns flags / population * 100 rounded half away from zero to two
// decimal places. population is clamped with EligiblePopulation.
func Ratio(flags, population int) decimal.Decimal {
	pop := decimal.NewFromInt(int64(EligiblePopulation(population)))
	return decimal.NewFromInt(int64(flags)).Mul(hundred).Div(pop).Round(2)
}

// Aggregator records flags and reports the record's standing. It does not
// decide escalation.
type Aggregator struct {
	Clock  ledger.Clock
	IDs    ledger.IDGenerator
	Logger *slog.Logger
}

// NewAggregator returns an Aggregator using the system clock and UUIDv7 ids.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		Clock:  ledger.SystemClock{},
		IDs:    ledger.UUIDv7Generator{},
		Logger: logger,
	}
}

// Add records userID's flag on recordID and returns the updated tally.
//
// Failure modes, none of which change state:
//   - ledger.ErrRecordNotFound / ledger.ErrActorNotFound
//   - ledger.ErrPartitionMismatch if the user belongs to another partition
//   - ledger.ErrDuplicateFlag if the user already flagged the record
//   - ledger.ErrStorage for repository failures
func (a *Aggregator) Add(ctx context.Context, repo FlagRepository, recordID, userID, reason string) (Tally, error) {
	rec, err := repo.GetRecord(ctx, recordID)
	if err != nil {
		return Tally{}, ledger.WrapStorage("get record", err)
	}
	actor, err := repo.GetActor(ctx, userID)
	if err != nil {
		return Tally{}, ledger.WrapStorage("get actor", err)
	}
	if actor.PartitionID != rec.PartitionID {
		return Tally{}, &ledger.Error{
			Code:        ledger.CodePartitionMismatch,
			Message:     "cannot flag a record outside your partition",
			RecordID:    recordID,
			UserID:      userID,
			PartitionID: rec.PartitionID,
		}
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}
	flag := Flag{
		ID:        a.IDs.NewID(),
		RecordID:  recordID,
		UserID:    userID,
		Reason:    reason,
		CreatedAt: ledger.CanonicalTime(a.Clock.Now()),
	}
	if _, err := repo.InsertFlag(ctx, flag); err != nil {
		return Tally{}, ledger.WrapStorage("insert flag", err)
	}

	return a.tally(ctx, repo, rec)
}

// Tally reports the current standing of a record without writing anything.
func (a *Aggregator) Tally(ctx context.Context, repo FlagRepository, recordID string) (Tally, error) {
	rec, err := repo.GetRecord(ctx, recordID)
	if err != nil {
		return Tally{}, ledger.WrapStorage("get record", err)
	}
	return a.tally(ctx, repo, rec)
}

func (a *Aggregator) tally(ctx context.Context, repo FlagRepository, rec ledger.BudgetRecord) (Tally, error) {
	flags, err := repo.CountFlags(ctx, rec.ID)
	if err != nil {
		return Tally{}, ledger.WrapStorage("count flags", err)
	}
	citizens, err := repo.CountRole(ctx, rec.PartitionID, RoleCitizen)
	if err != nil {
		return Tally{}, ledger.WrapStorage("count citizens", err)
	}

	t := Tally{
		FlagCount:  flags,
		Population: EligiblePopulation(citizens),
		Ratio:      Ratio(flags, citizens),
	}
	a.logger().Debug("flag tally",
		"record_id", rec.ID,
		"flags", t.FlagCount,
		"citizens", t.Population,
		"ratio", t.Ratio.StringFixed(2),
	)
	return t, nil
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
