package flagging

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/civicledger/internal/ledger"
)

// Role is an actor's role within its partition.
type Role string

const (
	// RoleCitizen actors flag records and form the ratio denominator.
	RoleCitizen Role = "citizen"
	// RoleChairman actors create budget records for their partition.
	RoleChairman Role = "chairman"
	// RoleAdmin actors administer the system; they are not counted.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleChairman, RoleAdmin:
		return true
	}
	return false
}

// Actor is a resolved identity. Identity resolution happens outside this
// package; operations receive actor ids explicitly.
type Actor struct {
	ID          string             `json:"id"`
	PartitionID ledger.PartitionID `json:"partition_id"`
	Role        Role               `json:"role"`
	Name        string             `json:"name,omitempty"`
}

// DefaultReason is stored when a flag is raised without a reason.
const DefaultReason = "suspicious"

// Flag is one user's suspicion about one record. At most one per
// (record, user); never updated or deleted.
type Flag struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"record_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// EscalationStatus is the state of an escalation.
//
// The lifecycle is pending -> reviewed. Only pending is ever written here;
// reviewed exists for a review workflow that is not built yet.
type EscalationStatus string

const (
	StatusPending  EscalationStatus = "pending"
	StatusReviewed EscalationStatus = "reviewed"
)

// Escalation is the alert raised when a record's flag ratio exceeds the
// threshold. At most one pending escalation exists per record.
type Escalation struct {
	ID          string           `json:"id"`
	RecordID    string           `json:"record_id"`
	FlagCount   int              `json:"flag_count"`
	FlagRatio   decimal.Decimal  `json:"flag_ratio"`
	Status      EscalationStatus `json:"status"`
	TriggeredAt time.Time        `json:"triggered_at"`
}

// Tally is the aggregate the Aggregator reports after a flag is recorded.
type Tally struct {
	FlagCount  int             `json:"flag_count"`
	Population int             `json:"population"`
	Ratio      decimal.Decimal `json:"ratio"`
}

// Decision is the outcome of evaluating a tally against the threshold.
type Decision struct {
	Escalated  bool        `json:"escalated"`
	Escalation *Escalation `json:"escalation,omitempty"`

	// Created is true only when this evaluation inserted the escalation.
	Created bool `json:"created"`
}

// FlagRepository is the storage the Aggregator needs.
type FlagRepository interface {
	// GetRecord returns the record or an error with ledger.CodeRecordNotFound.
	GetRecord(ctx context.Context, recordID string) (ledger.BudgetRecord, error)

	// GetActor returns the actor or an error with ledger.CodeActorNotFound.
	GetActor(ctx context.Context, actorID string) (Actor, error)

	// CountRole counts actors of role in partition.
	CountRole(ctx context.Context, partition ledger.PartitionID, role Role) (int, error)

	// InsertFlag stores a flag and returns its id. Fails with
	// ledger.CodeDuplicateFlag if (record, user) already exists.
	InsertFlag(ctx context.Context, flag Flag) (string, error)

	// CountFlags counts flags on a record.
	CountFlags(ctx context.Context, recordID string) (int, error)
}

// EscalationRepository is the storage the Engine needs.
type EscalationRepository interface {
	// PendingEscalation returns the record's pending escalation or nil.
	PendingEscalation(ctx context.Context, recordID string) (*Escalation, error)

	// InsertEscalation stores a new escalation and returns its id.
	InsertEscalation(ctx context.Context, esc Escalation) (string, error)
}

// Repository is everything the flag-and-escalate path touches. Callers run
// it inside one transaction per record.
type Repository interface {
	FlagRepository
	EscalationRepository
}
