package harness

import (
	"fmt"
	"strings"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation.
	Pass bool `json:"pass"`

	// Trace is one line per setup action and step outcome. It is fully
	// determined by the scenario, so it can be compared against a golden
	// file.
	Trace []string `json:"trace"`

	// Errors lists expectation mismatches. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
	}
}

// AddError adds an expectation mismatch and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// AddTrace appends a trace line.
func (r *Result) AddTrace(format string, args ...any) {
	r.Trace = append(r.Trace, fmt.Sprintf(format, args...))
}

// Render returns the trace as newline-terminated text.
func (r *Result) Render() []byte {
	var b strings.Builder
	for _, line := range r.Trace {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
