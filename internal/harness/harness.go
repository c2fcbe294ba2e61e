package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/intake"
	"github.com/roach88/civicledger/internal/ledger"
	"github.com/roach88/civicledger/internal/service"
	"github.com/roach88/civicledger/internal/store"
	"github.com/roach88/civicledger/internal/testutil"
)

// Harness executes one scenario. It runs with a stepping clock and
// sequential ids, so identical scenarios produce identical traces.
type Harness struct {
	store     *store.Store
	svc       *service.Service
	validator *intake.Validator
	result    *Result

	// codes maps record ids to project codes for readable traces; hashes
	// maps record hashes to project codes to name a record's predecessor.
	codes  map[string]string
	ids    map[string]string
	hashes map[ledger.Hash]string
}

// Run executes a scenario against a fresh database in a temporary directory
// and returns the result. The error is reserved for harness failures:
// a database that cannot be opened or setup actors that cannot be
// registered. Step outcomes that miss their expectation fail the result
// instead.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "civicledger-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario store: %w", err)
	}
	defer st.Close()

	validator, err := intake.New()
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithClock(testutil.NewSteppingClock(testutil.Epoch, 0)),
		service.WithIDGenerator(testutil.NewSequentialIDs(scenario.Name)),
	}
	if scenario.Threshold != "" {
		threshold, err := decimal.NewFromString(scenario.Threshold)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold %q: %w", scenario.Threshold, err)
		}
		opts = append(opts, service.WithThreshold(threshold))
	}

	h := &Harness{
		store:     st,
		svc:       service.New(service.SQLite(st), opts...),
		validator: validator,
		result:    NewResult(),
		codes:     make(map[string]string),
		ids:       make(map[string]string),
		hashes:    make(map[ledger.Hash]string),
	}

	h.result.AddTrace("scenario: %s", scenario.Name)
	h.result.AddTrace("threshold: %s", h.svc.Threshold().String())

	if err := h.setup(ctx, scenario); err != nil {
		return nil, err
	}
	for i, step := range scenario.Steps {
		h.execute(ctx, i+1, step)
	}
	return h.result, nil
}

func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	for _, a := range scenario.Actors {
		if err := h.svc.RegisterActor(ctx, a.actor()); err != nil {
			return fmt.Errorf("setup actor %s: %w", a.ID, err)
		}
		h.result.AddTrace("actor %s %s partition=%d", a.ID, a.Role, a.Partition)
	}
	for _, block := range scenario.Citizens {
		for n := 1; n <= block.Count; n++ {
			actor := flagging.Actor{
				ID:          CitizenID(block.Partition, n),
				PartitionID: ledger.PartitionID(block.Partition),
				Role:        flagging.RoleCitizen,
			}
			if err := h.svc.RegisterActor(ctx, actor); err != nil {
				return fmt.Errorf("setup citizen %s: %w", actor.ID, err)
			}
		}
		h.result.AddTrace("citizens partition=%d count=%d", block.Partition, block.Count)
	}
	return nil
}

// CitizenID names the n-th citizen of a partition declared through a
// citizens block.
func CitizenID(partition int64, n int) string {
	return fmt.Sprintf("citizen-%d-%02d", partition, n)
}

func (a ActorSpec) actor() flagging.Actor {
	return flagging.Actor{
		ID:          a.ID,
		PartitionID: ledger.PartitionID(a.Partition),
		Role:        a.Role,
		Name:        a.Name,
	}
}

// execute runs one step, traces its outcome and checks its expectation.
func (h *Harness) execute(ctx context.Context, n int, step Step) {
	expect := step.Expect
	if expect == nil {
		expect = &Expect{}
	}

	switch {
	case step.Append != nil:
		h.appendStep(ctx, n, step.Append, expect)
	case step.Flag != nil:
		h.flagStep(ctx, n, step.Flag, expect)
	case step.Verify != nil:
		h.verifyStep(ctx, n, step.Verify, expect)
	case step.Tamper != nil:
		h.tamperStep(ctx, n, step.Tamper, expect)
	case step.Actor != nil:
		err := h.svc.RegisterActor(ctx, step.Actor.actor())
		h.outcome(n, fmt.Sprintf("actor %s %s partition=%d", step.Actor.ID, step.Actor.Role, step.Actor.Partition), "ok", err, expect)
	}
}

func (h *Harness) appendStep(ctx context.Context, n int, s *AppendStep, expect *Expect) {
	drafts, label, err := h.drafts(s)
	if err != nil {
		h.outcome(n, fmt.Sprintf("append %s by %s", label, s.Actor), "", err, expect)
		return
	}

	for _, draft := range drafts {
		desc := fmt.Sprintf("append %s by %s", draft.ProjectCode, s.Actor)
		rec, err := h.svc.Append(ctx, s.Actor, draft)
		if err != nil {
			h.outcome(n, desc, "", err, expect)
			return
		}

		h.codes[rec.ID] = rec.ProjectCode
		h.ids[rec.ProjectCode] = rec.ID
		h.hashes[rec.RecordHash] = rec.ProjectCode

		link := "genesis"
		if !rec.IsGenesis() {
			prev, ok := h.hashes[rec.PrevHash]
			if !ok {
				prev = rec.PrevHash.Short()
			}
			link = "prev=" + prev
		}
		h.outcome(n, desc, "ok "+link, nil, expect)
	}
}

// drafts validates the step's drafts through the intake schema, the same
// path the CLI uses for draft files.
func (h *Harness) drafts(s *AppendStep) ([]ledger.Draft, string, error) {
	if s.File != "" {
		drafts, err := h.validator.ParseFile(s.File)
		return drafts, filepath.Base(s.File), err
	}

	label := "?"
	if code, ok := s.Draft["project_code"].(string); ok && code != "" {
		label = code
	}
	src, err := json.Marshal(s.Draft)
	if err != nil {
		return nil, label, &ledger.Error{Code: ledger.CodeInvalidDraft, Message: "encode inline draft", Err: err}
	}
	drafts, err := h.validator.Parse("draft.json", src)
	return drafts, label, err
}

func (h *Harness) flagStep(ctx context.Context, n int, s *FlagStep, expect *Expect) {
	desc := fmt.Sprintf("flag %s by %s", s.Record, s.User)

	res, err := h.svc.AddFlag(ctx, h.recordID(s.Record), s.User, s.Reason)
	if err != nil {
		h.outcome(n, desc, "", err, expect)
		return
	}

	ratio := res.Ratio.StringFixed(2)
	summary := fmt.Sprintf("ok flags=%d/%d ratio=%s", res.FlagCount, res.Population, ratio)
	if res.Escalated {
		summary += " escalated"
	}
	h.outcome(n, desc, summary, nil, expect)

	if expect.Escalated != nil && *expect.Escalated != res.Escalated {
		h.result.AddError("step %d: escalated = %t, expected %t", n, res.Escalated, *expect.Escalated)
	}
	if expect.Flags != nil && *expect.Flags != res.FlagCount {
		h.result.AddError("step %d: flags = %d, expected %d", n, res.FlagCount, *expect.Flags)
	}
	if expect.Ratio != "" && expect.Ratio != ratio {
		h.result.AddError("step %d: ratio = %s, expected %s", n, ratio, expect.Ratio)
	}
}

func (h *Harness) verifyStep(ctx context.Context, n int, s *VerifyStep, expect *Expect) {
	desc := fmt.Sprintf("verify partition=%d", s.Partition)

	report, err := h.svc.Verify(ctx, ledger.PartitionID(s.Partition))
	if err != nil {
		h.outcome(n, desc, "", err, expect)
		return
	}

	violations := make([]string, len(report.Violations))
	for i, v := range report.Violations {
		violations[i] = h.codeOf(v.RecordID) + ": " + string(v.Reason)
	}

	summary := fmt.Sprintf("valid records=%d", report.Records)
	if !report.Valid {
		summary = fmt.Sprintf("invalid records=%d [%s]", report.Records, strings.Join(violations, ", "))
	}
	h.outcome(n, desc, summary, nil, expect)

	if expect.Valid != nil && *expect.Valid != report.Valid {
		h.result.AddError("step %d: valid = %t, expected %t", n, report.Valid, *expect.Valid)
	}
	if expect.Records != nil && *expect.Records != report.Records {
		h.result.AddError("step %d: records = %d, expected %d", n, report.Records, *expect.Records)
	}
	if expect.Violations != nil && !slices.Equal(expect.Violations, violations) {
		h.result.AddError("step %d: violations = %v, expected %v", n, violations, expect.Violations)
	}
}

func (h *Harness) tamperStep(ctx context.Context, n int, s *TamperStep, expect *Expect) {
	desc := fmt.Sprintf("tamper %s %s", s.Record, s.Column)

	// The column is checked against tamperable during validation.
	query := fmt.Sprintf("UPDATE budget_records SET %s = ? WHERE id = ?", s.Column)
	res, err := h.store.DB().ExecContext(ctx, query, s.Value, h.recordID(s.Record))
	if err == nil {
		var affected int64
		if affected, err = res.RowsAffected(); err == nil && affected == 0 {
			err = &ledger.Error{Code: ledger.CodeRecordNotFound, Message: "no record " + s.Record}
		}
	}
	if err != nil {
		err = ledger.WrapStorage("tamper", err)
	}
	h.outcome(n, desc, "ok", err, expect)
}

// outcome traces a step's result and checks the expected error code.
func (h *Harness) outcome(n int, desc, summary string, err error, expect *Expect) {
	got := ""
	if err != nil {
		got = string(ledger.CodeOf(err))
		if got == "" {
			got = string(ledger.CodeStorage)
		}
		summary = "error " + got
	}
	h.result.AddTrace("[%02d] %s -> %s", n, desc, summary)

	switch {
	case expect.Error == "" && err != nil:
		h.result.AddError("step %d: unexpected error: %v", n, err)
	case expect.Error != "" && expect.Error != got:
		if err == nil {
			h.result.AddError("step %d: succeeded, expected error %s", n, expect.Error)
		} else {
			h.result.AddError("step %d: error %s, expected %s: %v", n, got, expect.Error, err)
		}
	}
}

// recordID resolves a project code to the id it was appended under. Unknown
// codes pass through unchanged, so a scenario can name a missing record.
func (h *Harness) recordID(code string) string {
	if id, ok := h.ids[code]; ok {
		return id
	}
	return code
}

func (h *Harness) codeOf(recordID string) string {
	if code, ok := h.codes[recordID]; ok {
		return code
	}
	return recordID
}
