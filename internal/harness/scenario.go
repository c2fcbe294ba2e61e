package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/civicledger/internal/flagging"
)

// Scenario is a scripted run against a fresh ledger: actors are registered,
// then steps execute in order and each outcome is checked against the step's
// expectation.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Threshold is the escalation threshold in percent. Empty means the
	// service default.
	Threshold string `yaml:"threshold,omitempty"`

	// Actors are registered before the first step.
	Actors []ActorSpec `yaml:"actors,omitempty"`

	// Citizens registers Count citizens per partition, named
	// citizen-<partition>-<nn>.
	Citizens []CitizenBlock `yaml:"citizens,omitempty"`

	// Steps is the main flow.
	Steps []Step `yaml:"steps"`
}

// ActorSpec declares one actor.
type ActorSpec struct {
	ID        string        `yaml:"id"`
	Role      flagging.Role `yaml:"role"`
	Partition int64         `yaml:"partition"`
	Name      string        `yaml:"name,omitempty"`
}

// CitizenBlock declares a run of citizens in one partition.
type CitizenBlock struct {
	Partition int64 `yaml:"partition"`
	Count     int   `yaml:"count"`
}

// Step performs exactly one action.
type Step struct {
	Append *AppendStep `yaml:"append,omitempty"`
	Flag   *FlagStep   `yaml:"flag,omitempty"`
	Verify *VerifyStep `yaml:"verify,omitempty"`
	Tamper *TamperStep `yaml:"tamper,omitempty"`
	Actor  *ActorSpec  `yaml:"actor,omitempty"`

	// Expect checks the outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// AppendStep appends drafts as Actor. The drafts come either inline or from
// a CUE or JSON file resolved relative to the scenario file.
type AppendStep struct {
	Actor string         `yaml:"actor"`
	Draft map[string]any `yaml:"draft,omitempty"`
	File  string         `yaml:"file,omitempty"`
}

// FlagStep flags a record, named by project code, as User.
type FlagStep struct {
	Record string `yaml:"record"`
	User   string `yaml:"user"`
	Reason string `yaml:"reason,omitempty"`
}

// VerifyStep verifies one partition's chain.
type VerifyStep struct {
	Partition int64 `yaml:"partition"`
}

// TamperStep overwrites one column of a stored record behind the ledger's
// back, the way an attacker with database access would.
type TamperStep struct {
	Record string `yaml:"record"`
	Column string `yaml:"column"`
	Value  string `yaml:"value"`
}

// Expect lists the checks for a step. Unset fields are not checked.
type Expect struct {
	// Error is the expected error code. Empty expects success.
	Error string `yaml:"error,omitempty"`

	Escalated *bool  `yaml:"escalated,omitempty"`
	Flags     *int   `yaml:"flags,omitempty"`
	Ratio     string `yaml:"ratio,omitempty"`

	Valid   *bool `yaml:"valid,omitempty"`
	Records *int  `yaml:"records,omitempty"`

	// Violations are "<project code>: <reason>" in report order.
	Violations []string `yaml:"violations,omitempty"`
}

// tamperable lists the budget_records columns a tamper step may rewrite.
var tamperable = map[string]bool{
	"project_code":             true,
	"project_name":             true,
	"category":                 true,
	"implementing_authority":   true,
	"responsible_official":     true,
	"approval_date":            true,
	"start_date":               true,
	"expected_completion_date": true,
	"total_allocated_amount":   true,
	"status":                   true,
	"ward":                     true,
	"creator_id":               true,
	"prev_hash":                true,
	"record_hash":              true,
	"created_at":               true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly. Draft file paths are resolved relative to
// the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for _, step := range scenario.Steps {
		if step.Append != nil && step.Append.File != "" && !filepath.IsAbs(step.Append.File) {
			step.Append.File = filepath.Join(base, step.Append.File)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, a := range s.Actors {
		if a.ID == "" {
			return fmt.Errorf("actors[%d]: id is required", i)
		}
	}
	for i, c := range s.Citizens {
		if c.Partition <= 0 || c.Count <= 0 {
			return fmt.Errorf("citizens[%d]: partition and count must be positive", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	actions := 0
	for _, set := range []bool{step.Append != nil, step.Flag != nil, step.Verify != nil, step.Tamper != nil, step.Actor != nil} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("exactly one of append, flag, verify, tamper or actor is required")
	}

	switch {
	case step.Append != nil:
		if step.Append.Actor == "" {
			return fmt.Errorf("append: actor is required")
		}
		if (step.Append.Draft == nil) == (step.Append.File == "") {
			return fmt.Errorf("append: exactly one of draft or file is required")
		}
	case step.Flag != nil:
		if step.Flag.Record == "" || step.Flag.User == "" {
			return fmt.Errorf("flag: record and user are required")
		}
	case step.Verify != nil:
		if step.Verify.Partition <= 0 {
			return fmt.Errorf("verify: partition must be positive")
		}
	case step.Tamper != nil:
		if step.Tamper.Record == "" {
			return fmt.Errorf("tamper: record is required")
		}
		if !tamperable[step.Tamper.Column] {
			return fmt.Errorf("tamper: column %q cannot be tampered", step.Tamper.Column)
		}
	}
	return nil
}
