// Package ledger implements the per-partition hash chain of budget records.
//
// Each partition (an administrative union) owns an independent chain. A new
// record is sealed by hashing its canonical encoding together with the
// previous record's hash and its creation timestamp:
//
//	record_hash = SHA-256(Encode(fields, prev_hash, created_at))
//
// The first record of a partition has no prev_hash (genesis). Any later edit
// to a stored record changes the recomputed hash, and any reordering or
// removal breaks a link, so Verify can report both.
//
// # Components
//
//   - Encode: fixed-order canonical bytes (canonical.go)
//   - Builder.Append: seals a draft onto the partition tail (builder.go)
//   - Verify / VerifyRecords: replays and checks a chain (verify.go)
//
// Storage is behind ChainRepository. This package never locks; callers make
// append atomic per partition.
package ledger
