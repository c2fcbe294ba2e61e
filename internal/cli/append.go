package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/civicledger/internal/intake"
	"github.com/roach88/civicledger/internal/ledger"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	File  string
	Actor string
}

type appendResult struct {
	Records []ledger.BudgetRecord `json:"records"`
}

func (r appendResult) RenderText(w io.Writer) {
	for _, rec := range r.Records {
		prev := "genesis"
		if !rec.IsGenesis() {
			prev = "prev=" + rec.PrevHash.Short()
		}
		fmt.Fprintf(w, "appended %s  id=%s partition=%d hash=%s %s\n",
			rec.ProjectCode, rec.ID, rec.PartitionID, rec.RecordHash.Short(), prev)
	}
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append budget records from a draft file",
		Long: `Validate drafts from a CUE or JSON file and append them, in order, to
their partition's chain on behalf of a chairman.

A file holds either one draft or a "drafts" list. Validation happens before
anything is appended; appending stops at the first rejected draft.

Example:
  civicledger append --file kibera-2024.cue --as chair-kibera`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "CUE or JSON draft file (required)")
	cmd.Flags().StringVar(&opts.Actor, "as", "", "acting chairman's actor id (required)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func runAppend(cmd *cobra.Command, opts *AppendOptions) error {
	validator, err := intake.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load draft schema", err)
	}
	drafts, err := validator.ParseFile(opts.File)
	if err != nil {
		return rejected("append", err)
	}

	return opts.withApp(cmd, func(ctx context.Context, a *app) error {
		a.out.VerboseLog("appending %d draft(s) from %s", len(drafts), opts.File)

		result := appendResult{Records: make([]ledger.BudgetRecord, 0, len(drafts))}
		for i, draft := range drafts {
			rec, err := a.svc.Append(ctx, opts.Actor, draft)
			if err != nil {
				// Report what was appended before the failure.
				if len(result.Records) > 0 {
					_ = a.out.Success(result)
				}
				return rejected(fmt.Sprintf("append draft %d (%s)", i+1, draft.ProjectCode), err)
			}
			result.Records = append(result.Records, rec)
		}
		return a.out.Success(result)
	})
}
