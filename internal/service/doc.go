// Package service exposes the budget ledger operations to callers.
//
// It composes the chain builder and verifier (internal/ledger) with the
// flag aggregator and escalation engine (internal/flagging) over a Backend,
// and owns the critical sections that keep their invariants under
// concurrency:
//
//   - one append at a time per partition, so no two records claim the same
//     predecessor
//   - one flag at a time per record, so a record crossing the threshold
//     gets exactly one pending escalation
//
// Operations log with log/slog, open an OpenTelemetry span each and count
// outcomes in Prometheus collectors (see Metrics).
package service
