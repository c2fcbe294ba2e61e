package flagging

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/roach88/civicledger/internal/ledger"
)

// DefaultThreshold is the flag ratio, in percent, a record must exceed to
// escalate.
var DefaultThreshold = decimal.NewFromInt(50)

// Engine escalates records whose flag ratio exceeds Threshold.
//
// Per record the states are Normal -> Escalated(pending) -> Reviewed. The
// engine only performs the first transition; Reviewed is reserved.
type Engine struct {
	Threshold decimal.Decimal
	Clock     ledger.Clock
	IDs       ledger.IDGenerator
	Logger    *slog.Logger
}

// NewEngine returns an Engine with the given threshold in percent.
func NewEngine(threshold decimal.Decimal, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Threshold: threshold,
		Clock:     ledger.SystemClock{},
		IDs:       ledger.UUIDv7Generator{},
		Logger:    logger,
	}
}

// Crosses reports whether ratio escalates. The comparison is strict: a ratio
// equal to the threshold does not escalate.
func (e *Engine) Crosses(ratio decimal.Decimal) bool {
	return ratio.GreaterThan(e.Threshold)
}

// Evaluate applies the threshold to a record's tally.
//
//   - ratio <= threshold: nothing happens, Escalated is false.
//   - ratio > threshold and a pending escalation exists: it is returned
//     unchanged with Escalated true and Created false.
//   - otherwise a pending escalation is inserted and returned with Created true.
//
// Check-then-insert is only safe when the caller serializes evaluations per
// record.
func (e *Engine) Evaluate(ctx context.Context, repo EscalationRepository, recordID string, t Tally) (Decision, error) {
	if !e.Crosses(t.Ratio) {
		return Decision{}, nil
	}

	existing, err := repo.PendingEscalation(ctx, recordID)
	if err != nil {
		return Decision{}, ledger.WrapStorage("get pending escalation", err)
	}
	if existing != nil {
		e.logger().Debug("escalation already pending",
			"record_id", recordID,
			"escalation_id", existing.ID,
		)
		return Decision{Escalated: true, Escalation: existing}, nil
	}

	esc := Escalation{
		ID:          e.IDs.NewID(),
		RecordID:    recordID,
		FlagCount:   t.FlagCount,
		FlagRatio:   t.Ratio,
		Status:      StatusPending,
		TriggeredAt: ledger.CanonicalTime(e.Clock.Now()),
	}
	id, err := repo.InsertEscalation(ctx, esc)
	if err != nil {
		return Decision{}, ledger.WrapStorage("insert escalation", err)
	}
	esc.ID = id

	e.logger().Info("escalation created",
		"record_id", recordID,
		"escalation_id", esc.ID,
		"flags", esc.FlagCount,
		"ratio", esc.FlagRatio.StringFixed(2),
		"threshold", e.Threshold.String(),
	)
	return Decision{Escalated: true, Escalation: &esc, Created: true}, nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
