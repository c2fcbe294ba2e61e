// Package store provides SQLite-backed durable storage for budget ledgers.
//
// The store holds four tables:
//   - actors: citizens, chairmen and admins, each bound to one partition
//   - budget_records: the append-only hash chain, one chain per partition
//   - flags: at most one flag per (record, user)
//   - escalations: at most one pending escalation per record
//
// # Constraints
//
// The schema backs up the service's locking with unique indexes:
//   - UNIQUE(partition_id, COALESCE(prev_hash, '0')) forbids forks
//   - UNIQUE(record_id, user_id) on flags rejects duplicate flags
//   - a partial unique index allows one pending escalation per record
//
// # Transactions
//
// Atomic and Snapshot hand a *Tx to a callback.
//
// Atomic runs on the single write connection with BEGIN IMMEDIATE (the
// _txlock DSN option), so the write lock is held from the first statement.
// An Atomic callback must only use its *Tx; calling Atomic or Repo from
// inside it deadlocks.
//
// Snapshot runs on a separate read-only pool with deferred transactions.
// Snapshots proceed in parallel with each other and with an open Atomic
// transaction, and see only committed data.
//
// # Database Configuration
//
//   - WAL mode: readers and the writer do not block each other
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
