package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
)

// Service exposes the ledger and flagging operations.
//
// Thread-safety model:
//   - Append: serialized per partition, concurrent across partitions
//   - AddFlag: serialized per record, concurrent across records
//   - Verify and queries: run in snapshot transactions, never block on the
//     keyed locks
//
// Every mutating operation also runs in one storage transaction, so a
// failure anywhere leaves no partial state.
type Service struct {
	backend    Backend
	builder    *ledger.Builder
	aggregator *flagging.Aggregator
	engine     *flagging.Engine
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *Metrics

	partitions keyedMutex[ledger.PartitionID]
	records    keyedMutex[string]
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used by the service and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the wall clock used to stamp records, flags and
// escalations.
func WithClock(clock ledger.Clock) Option {
	return func(s *Service) {
		s.builder.Clock = clock
		s.aggregator.Clock = clock
		s.engine.Clock = clock
	}
}

// WithIDGenerator replaces the id generator for new rows.
func WithIDGenerator(ids ledger.IDGenerator) Option {
	return func(s *Service) {
		s.builder.IDs = ids
		s.aggregator.IDs = ids
		s.engine.IDs = ids
	}
}

// WithThreshold sets the escalation threshold in percent.
//
// Default: 50 (flagging.DefaultThreshold)
func WithThreshold(threshold decimal.Decimal) Option {
	return func(s *Service) {
		s.engine.Threshold = threshold
	}
}

// WithMetrics records operation counters into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer for service spans. Defaults to the global
// provider's tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New creates a Service over backend.
func New(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend:    backend,
		builder:    ledger.NewBuilder(nil),
		aggregator: flagging.NewAggregator(nil),
		engine:     flagging.NewEngine(flagging.DefaultThreshold, nil),
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.builder.Logger = s.logger
	s.aggregator.Logger = s.logger
	s.engine.Logger = s.logger
	return s
}

// Threshold returns the escalation threshold in percent.
func (s *Service) Threshold() decimal.Decimal {
	return s.engine.Threshold
}

// RegisterActor creates or replaces an actor.
func (s *Service) RegisterActor(ctx context.Context, actor flagging.Actor) (err error) {
	ctx, span := s.startSpan(ctx, "service.RegisterActor",
		attribute.String("actor_id", actor.ID),
		attribute.Int64("partition_id", int64(actor.PartitionID)),
	)
	defer func() { endSpan(span, err) }()

	actor.ID = strings.TrimSpace(actor.ID)
	switch {
	case actor.ID == "":
		return s.reject(ctx, "register_actor", &ledger.Error{Code: ledger.CodeInvalidActor, Message: "actor id is required"})
	case !actor.Role.Valid():
		return s.reject(ctx, "register_actor", &ledger.Error{Code: ledger.CodeInvalidActor, Message: "unknown role " + string(actor.Role), UserID: actor.ID})
	case actor.PartitionID <= 0:
		return s.reject(ctx, "register_actor", &ledger.Error{Code: ledger.CodeInvalidActor, Message: "partition_id must be positive", UserID: actor.ID})
	}

	err = s.backend.Atomic(ctx, func(repo Repository) error {
		return ledger.WrapStorage("put actor", repo.PutActor(ctx, actor))
	})
	if err != nil {
		return s.reject(ctx, "register_actor", ledger.WrapStorage("register actor", err))
	}

	s.logger.Info("actor registered",
		"actor_id", actor.ID,
		"partition", actor.PartitionID,
		"role", actor.Role,
	)
	return nil
}

// Append seals draft onto its partition's chain on behalf of actorID.
//
// The actor must exist, be a chairman and belong to the draft's partition.
// The draft's creator_id is always set to actorID. The read-tail, hash and
// insert sequence runs under the partition lock inside one transaction.
//
// Errors: ledger.ErrInvalidDraft, ledger.ErrActorNotFound,
// ledger.ErrNotAuthorized, ledger.ErrPartitionMismatch, ledger.ErrStorage.
func (s *Service) Append(ctx context.Context, actorID string, draft ledger.Draft) (rec ledger.BudgetRecord, err error) {
	ctx, span := s.startSpan(ctx, "service.Append",
		attribute.String("actor_id", actorID),
		attribute.Int64("partition_id", int64(draft.PartitionID)),
	)
	defer func() { endSpan(span, err) }()

	draft.CreatorID = actorID
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return ledger.BudgetRecord{}, s.reject(ctx, "append", err)
	}

	unlock := s.partitions.Lock(draft.PartitionID)
	defer unlock()

	err = s.backend.Atomic(ctx, func(repo Repository) error {
		actor, err := repo.GetActor(ctx, actorID)
		if err != nil {
			return ledger.WrapStorage("get actor", err)
		}
		if actor.Role != flagging.RoleChairman {
			return &ledger.Error{
				Code:        ledger.CodeNotAuthorized,
				Message:     "only a chairman may create budget records",
				UserID:      actorID,
				PartitionID: draft.PartitionID,
			}
		}
		if actor.PartitionID != draft.PartitionID {
			return &ledger.Error{
				Code:        ledger.CodePartitionMismatch,
				Message:     "cannot create a record for another partition",
				UserID:      actorID,
				PartitionID: draft.PartitionID,
			}
		}

		rec, err = s.builder.Append(ctx, repo, draft)
		return err
	})
	if err != nil {
		return ledger.BudgetRecord{}, s.reject(ctx, "append", ledger.WrapStorage("append", err))
	}

	span.SetAttributes(attribute.String("record_id", rec.ID))
	s.metrics.recordAppended()
	s.logger.Info("record appended",
		"partition", rec.PartitionID,
		"record_id", rec.ID,
		"project_code", rec.ProjectCode,
		"record_hash", rec.RecordHash.Short(),
	)
	return rec, nil
}

// Verify checks the integrity of a partition's chain against a consistent
// snapshot. Integrity findings are in the report; err is only for storage
// failures.
func (s *Service) Verify(ctx context.Context, partition ledger.PartitionID) (report ledger.Report, err error) {
	ctx, span := s.startSpan(ctx, "service.Verify",
		attribute.Int64("partition_id", int64(partition)),
	)
	defer func() { endSpan(span, err) }()

	err = s.backend.Snapshot(ctx, func(repo Repository) error {
		r, err := ledger.Verify(ctx, repo, partition)
		report = r
		return err
	})
	if err != nil {
		return ledger.Report{}, s.reject(ctx, "verify", ledger.WrapStorage("verify", err))
	}

	span.SetAttributes(
		attribute.Bool("valid", report.Valid),
		attribute.Int("records", report.Records),
		attribute.Int("violations", len(report.Violations)),
	)
	s.metrics.verified(report)
	if report.Valid {
		s.logger.Debug("chain verified",
			"partition", partition,
			"records", report.Records,
		)
	} else {
		s.logger.Warn("chain integrity violated",
			"partition", partition,
			"records", report.Records,
			"violations", len(report.Violations),
		)
	}
	return report, nil
}

// FlagResult is the outcome of AddFlag.
type FlagResult struct {
	RecordID   string               `json:"record_id"`
	FlagCount  int                  `json:"flag_count"`
	Population int                  `json:"population"`
	Ratio      decimal.Decimal      `json:"ratio"`
	Escalated  bool                 `json:"escalated"`
	Escalation *flagging.Escalation `json:"escalation,omitempty"`
}

// AddFlag records userID's flag on recordID and applies the escalation
// threshold. Insert, count, threshold check and escalation insert run under
// the record lock inside one transaction, so concurrent flags that cross the
// threshold create exactly one escalation.
//
// Errors: ledger.ErrRecordNotFound, ledger.ErrActorNotFound,
// ledger.ErrPartitionMismatch, ledger.ErrDuplicateFlag, ledger.ErrStorage.
func (s *Service) AddFlag(ctx context.Context, recordID, userID, reason string) (result FlagResult, err error) {
	ctx, span := s.startSpan(ctx, "service.AddFlag",
		attribute.String("record_id", recordID),
		attribute.String("user_id", userID),
	)
	defer func() { endSpan(span, err) }()

	unlock := s.records.Lock(recordID)
	defer unlock()

	var (
		tally    flagging.Tally
		decision flagging.Decision
	)
	err = s.backend.Atomic(ctx, func(repo Repository) error {
		var err error
		if tally, err = s.aggregator.Add(ctx, repo, recordID, userID, reason); err != nil {
			return err
		}
		decision, err = s.engine.Evaluate(ctx, repo, recordID, tally)
		return err
	})
	if err != nil {
		return FlagResult{}, s.reject(ctx, "add_flag", ledger.WrapStorage("add flag", err))
	}

	result = FlagResult{
		RecordID:   recordID,
		FlagCount:  tally.FlagCount,
		Population: tally.Population,
		Ratio:      tally.Ratio,
		Escalated:  decision.Escalated,
		Escalation: decision.Escalation,
	}

	span.SetAttributes(
		attribute.Int("flag_count", result.FlagCount),
		attribute.String("ratio", result.Ratio.StringFixed(2)),
		attribute.Bool("escalated", result.Escalated),
	)
	s.metrics.flagRecorded(decision.Created)
	s.logger.Info("flag recorded",
		"record_id", recordID,
		"user_id", userID,
		"flags", result.FlagCount,
		"ratio", result.Ratio.StringFixed(2),
		"escalated", result.Escalated,
	)
	return result, nil
}

// reject logs a failed operation, counts it and returns err unchanged.
func (s *Service) reject(ctx context.Context, op string, err error) error {
	code := ledger.CodeOf(err)
	s.metrics.rejectedOp(op, code)

	level := slog.LevelWarn
	if code == ledger.CodeStorage || code == "" {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "operation rejected",
		"operation", op,
		"code", code,
		"error", err,
	)
	return err
}
