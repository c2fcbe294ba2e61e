package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
)

// RecordSummary is a record with its current flag standing.
type RecordSummary struct {
	Record     ledger.BudgetRecord  `json:"record"`
	FlagCount  int                  `json:"flag_count"`
	Population int                  `json:"population"`
	Ratio      decimal.Decimal      `json:"ratio"`
	Escalation *flagging.Escalation `json:"escalation,omitempty"`

	// ViewerFlagged is whether the viewer passed to Summary has flagged the
	// record. Always false for an anonymous viewer.
	ViewerFlagged bool `json:"viewer_flagged"`
}

// PendingEscalation is a pending escalation with the record it concerns and
// the record's standing now, which may differ from the standing when the
// escalation triggered.
type PendingEscalation struct {
	Escalation flagging.Escalation `json:"escalation"`
	Record     ledger.BudgetRecord `json:"record"`
	FlagCount  int                 `json:"flag_count"`
	Ratio      decimal.Decimal     `json:"ratio"`
}

// Summary returns recordID with its flag count, ratio and pending
// escalation. viewerID may be empty.
func (s *Service) Summary(ctx context.Context, recordID, viewerID string) (summary RecordSummary, err error) {
	ctx, span := s.startSpan(ctx, "service.Summary",
		attribute.String("record_id", recordID),
	)
	defer func() { endSpan(span, err) }()

	err = s.backend.Snapshot(ctx, func(repo Repository) error {
		rec, err := repo.GetRecord(ctx, recordID)
		if err != nil {
			return ledger.WrapStorage("get record", err)
		}
		tally, err := s.aggregator.Tally(ctx, repo, recordID)
		if err != nil {
			return err
		}
		esc, err := repo.PendingEscalation(ctx, recordID)
		if err != nil {
			return ledger.WrapStorage("get pending escalation", err)
		}

		summary = RecordSummary{
			Record:     rec,
			FlagCount:  tally.FlagCount,
			Population: tally.Population,
			Ratio:      tally.Ratio,
			Escalation: esc,
		}
		if viewerID != "" {
			flagged, err := repo.HasFlagged(ctx, recordID, viewerID)
			if err != nil {
				return ledger.WrapStorage("has flagged", err)
			}
			summary.ViewerFlagged = flagged
		}
		return nil
	})
	if err != nil {
		return RecordSummary{}, ledger.WrapStorage("summary", err)
	}
	return summary, nil
}

// PendingEscalations lists a partition's pending escalations, most recently
// triggered first.
func (s *Service) PendingEscalations(ctx context.Context, partition ledger.PartitionID) (list []PendingEscalation, err error) {
	ctx, span := s.startSpan(ctx, "service.PendingEscalations",
		attribute.Int64("partition_id", int64(partition)),
	)
	defer func() { endSpan(span, err) }()

	err = s.backend.Snapshot(ctx, func(repo Repository) error {
		escalations, err := repo.ListPendingEscalations(ctx, partition)
		if err != nil {
			return ledger.WrapStorage("list escalations", err)
		}

		list = make([]PendingEscalation, 0, len(escalations))
		for _, esc := range escalations {
			rec, err := repo.GetRecord(ctx, esc.RecordID)
			if err != nil {
				return ledger.WrapStorage("get record", err)
			}
			tally, err := s.aggregator.Tally(ctx, repo, esc.RecordID)
			if err != nil {
				return err
			}
			list = append(list, PendingEscalation{
				Escalation: esc,
				Record:     rec,
				FlagCount:  tally.FlagCount,
				Ratio:      tally.Ratio,
			})
		}
		return nil
	})
	if err != nil {
		return nil, ledger.WrapStorage("pending escalations", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(list)))
	return list, nil
}

// FlagsByUser returns every flag userID has raised, newest first.
func (s *Service) FlagsByUser(ctx context.Context, userID string) (flags []flagging.Flag, err error) {
	ctx, span := s.startSpan(ctx, "service.FlagsByUser",
		attribute.String("user_id", userID),
	)
	defer func() { endSpan(span, err) }()

	err = s.backend.Snapshot(ctx, func(repo Repository) error {
		f, err := repo.ListFlagsByUser(ctx, userID)
		flags = f
		return err
	})
	if err != nil {
		return nil, ledger.WrapStorage("flags by user", err)
	}
	return flags, nil
}

// Records returns a partition's records newest first.
func (s *Service) Records(ctx context.Context, partition ledger.PartitionID) (records []ledger.BudgetRecord, err error) {
	ctx, span := s.startSpan(ctx, "service.Records",
		attribute.Int64("partition_id", int64(partition)),
	)
	defer func() { endSpan(span, err) }()

	err = s.backend.Snapshot(ctx, func(repo Repository) error {
		r, err := repo.ListRecordsNewestFirst(ctx, partition)
		records = r
		return err
	})
	if err != nil {
		return nil, ledger.WrapStorage("records", err)
	}
	return records, nil
}

// Actor returns a registered actor.
func (s *Service) Actor(ctx context.Context, actorID string) (actor flagging.Actor, err error) {
	err = s.backend.Snapshot(ctx, func(repo Repository) error {
		a, err := repo.GetActor(ctx, actorID)
		actor = a
		return err
	})
	if err != nil {
		return flagging.Actor{}, ledger.WrapStorage("get actor", err)
	}
	return actor, nil
}
