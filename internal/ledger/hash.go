package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ComputeHash returns the lowercase hex SHA-256 of the canonical encoding.
// No domain prefix is mixed in; the digest is a function of the encoding alone.
func ComputeHash(d Draft, prevHash Hash, createdAt time.Time) Hash {
	sum := sha256.Sum256(Encode(d, prevHash, createdAt))
	return Hash(hex.EncodeToString(sum[:]))
}

// Recompute returns the hash the record's stored content implies.
func (r BudgetRecord) Recompute() Hash {
	return ComputeHash(r.Draft, r.PrevHash, r.CreatedAt)
}

// Seal computes and sets RecordHash from the record's current content.
func (r *BudgetRecord) Seal() {
	r.RecordHash = r.Recompute()
}
