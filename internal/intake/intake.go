package intake

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/civicledger/internal/ledger"
)

//go:embed schema.cue
var schemaSource string

// Validator checks draft documents against the embedded #Draft schema.
//
// A document is CUE or JSON (JSON is valid CUE). It either is a single draft
// at the top level or holds a list of drafts under "drafts".
//
// Not safe for concurrent use: a cue.Context is single-threaded.
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile draft schema: %w", err)
	}
	schema := root.LookupPath(cue.ParsePath("#Draft"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("lookup #Draft: %w", err)
	}
	return &Validator{ctx: ctx, schema: schema}, nil
}

// ParseFile reads and validates the drafts in path.
func (v *Validator) ParseFile(path string) ([]ledger.Draft, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read draft file: %w", err)
	}
	return v.Parse(filepath.Base(path), src)
}

// Parse validates the drafts in src. filename only labels error positions.
//
// Every failure is an *ledger.Error with CodeInvalidDraft. The returned
// drafts have defaults applied (status "planned") but have not been through
// ledger.Draft.Validate: creator_id is usually filled in later from the
// acting user.
func (v *Validator) Parse(filename string, src []byte) ([]ledger.Draft, error) {
	doc := v.ctx.CompileBytes(src, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, invalid(err)
	}

	list := doc.LookupPath(cue.ParsePath("drafts"))
	if !list.Exists() {
		d, err := v.decode(doc)
		if err != nil {
			return nil, err
		}
		return []ledger.Draft{d}, nil
	}

	iter, err := list.List()
	if err != nil {
		return nil, invalid(err)
	}
	var drafts []ledger.Draft
	for i := 0; iter.Next(); i++ {
		d, err := v.decode(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("drafts[%d]: %w", i, err)
		}
		drafts = append(drafts, d)
	}
	if len(drafts) == 0 {
		return nil, &ledger.Error{Code: ledger.CodeInvalidDraft, Message: filename + ": drafts list is empty"}
	}
	return drafts, nil
}

func (v *Validator) decode(val cue.Value) (ledger.Draft, error) {
	unified := v.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return ledger.Draft{}, invalid(err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return ledger.Draft{}, invalid(err)
	}
	var d ledger.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return ledger.Draft{}, &ledger.Error{Code: ledger.CodeInvalidDraft, Message: "decode draft", Err: err}
	}
	return d.Normalize(), nil
}

// invalid converts a CUE error to an INVALID_DRAFT error naming the first
// problem and its position.
func invalid(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ledger.Error{Code: ledger.CodeInvalidDraft, Message: err.Error()}
	}

	first := errs[0]
	msg := first.Error()
	if path := strings.Join(first.Path(), "."); path != "" && !strings.Contains(msg, path) {
		msg = path + ": " + msg
	}
	if positions := errors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		pos := positions[0]
		msg = fmt.Sprintf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), msg)
	}
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
	}
	return &ledger.Error{Code: ledger.CodeInvalidDraft, Message: msg}
}
