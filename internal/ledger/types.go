package ledger

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PartitionID identifies an administrative union. Chains and population
// counts never cross partitions.
type PartitionID int64

// Hash is a lowercase hex SHA-256 digest. The zero Hash stands for "no
// predecessor" and is only legal as the prev_hash of a genesis record.
type Hash string

// IsZero reports whether h is the null hash.
func (h Hash) IsZero() bool {
	return h == ""
}

// Short returns the first 12 characters of the hash for log output.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Category classifies what a budget allocation pays for.
type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryHealth         Category = "health"
	CategoryEducation      Category = "education"
	CategoryAgriculture    Category = "agriculture"
	CategorySanitation     Category = "sanitation"
	CategoryOther          Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryInfrastructure, CategoryHealth, CategoryEducation,
		CategoryAgriculture, CategorySanitation, CategoryOther:
		return true
	}
	return false
}

// Status is the project status captured when the record was created.
// Status changes after creation are not modeled; a record is immutable.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusStalled   Status = "stalled"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusOngoing, StatusCompleted, StatusStalled, StatusCancelled:
		return true
	}
	return false
}

// Draft holds the caller-supplied fields of a budget record. Optional
// fields are empty strings when absent.
type Draft struct {
	ProjectCode            string          `json:"project_code"`
	ProjectName            string          `json:"project_name"`
	Category               Category        `json:"category"`
	ImplementingAuthority  string          `json:"implementing_authority"`
	ResponsibleOfficial    string          `json:"responsible_official"`
	ApprovalDate           string          `json:"approval_date,omitempty"`
	StartDate              string          `json:"start_date,omitempty"`
	ExpectedCompletionDate string          `json:"expected_completion_date,omitempty"`
	TotalAllocatedAmount   decimal.Decimal `json:"total_allocated_amount"`
	Status                 Status          `json:"status"`
	PartitionID            PartitionID     `json:"partition_id"`
	Ward                   string          `json:"ward,omitempty"`
	CreatorID              string          `json:"creator_id"`
}

var dateRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Normalize fills defaults: a missing status becomes planned.
func (d Draft) Normalize() Draft {
	if d.Status == "" {
		d.Status = StatusPlanned
	}
	return d
}

// Validate checks the draft for the fields every record must carry.
// The returned error is an *Error with CodeInvalidDraft.
func (d Draft) Validate() error {
	required := []struct {
		name, value string
	}{
		{"project_code", d.ProjectCode},
		{"project_name", d.ProjectName},
		{"implementing_authority", d.ImplementingAuthority},
		{"responsible_official", d.ResponsibleOfficial},
		{"creator_id", d.CreatorID},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return invalidDraft("%s is required", f.name)
		}
	}
	if !d.Category.Valid() {
		return invalidDraft("unknown category %q", d.Category)
	}
	if !d.Status.Valid() {
		return invalidDraft("unknown status %q", d.Status)
	}
	if !d.TotalAllocatedAmount.IsPositive() {
		return invalidDraft("total_allocated_amount must be positive, got %s", d.TotalAllocatedAmount)
	}
	if d.PartitionID <= 0 {
		return invalidDraft("partition_id must be positive, got %d", d.PartitionID)
	}
	dates := []struct {
		name, value string
	}{
		{"approval_date", d.ApprovalDate},
		{"start_date", d.StartDate},
		{"expected_completion_date", d.ExpectedCompletionDate},
	}
	for _, f := range dates {
		if f.value == "" {
			continue
		}
		if !dateRE.MatchString(f.value) {
			return invalidDraft("%s must be YYYY-MM-DD, got %q", f.name, f.value)
		}
		if _, err := time.Parse(time.DateOnly, f.value); err != nil {
			return invalidDraft("%s is not a calendar date: %q", f.name, f.value)
		}
	}
	return nil
}

// BudgetRecord is a draft sealed into a partition's chain.
//
// ID and Seq are storage identity and are not part of the hash input; every
// other field is.
type BudgetRecord struct {
	Draft

	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	PrevHash   Hash      `json:"prev_hash,omitempty"`
	RecordHash Hash      `json:"record_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsGenesis reports whether the record claims to start its chain.
func (r BudgetRecord) IsGenesis() bool {
	return r.PrevHash.IsZero()
}
