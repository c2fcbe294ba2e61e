package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/civicledger/internal/ledger"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Partition int64
}

type reportView struct {
	ledger.Report
}

func (v reportView) RenderText(w io.Writer) {
	if v.Valid {
		fmt.Fprintf(w, "partition %d: valid (%d records)\n", v.Partition, v.Records)
		return
	}
	fmt.Fprintf(w, "partition %d: INVALID (%d records, %d violations)\n", v.Partition, v.Records, len(v.Violations))
	for _, viol := range v.Violations {
		fmt.Fprintf(w, "  %s: %s\n", viol.RecordID, viol.Reason)
	}
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a partition's hash chain",
		Long: `Recompute every record hash of a partition and check the chain links.

Exit codes:
  0 - Chain is intact
  1 - Chain integrity violated (violations are listed)
  2 - Command error

Example:
  civicledger verify --partition 1 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.svc.Verify(ctx, ledger.PartitionID(opts.Partition))
				if err != nil {
					return rejected("verify", err)
				}
				if err := a.out.Success(reportView{report}); err != nil {
					return err
				}
				if !report.Valid {
					return NewExitError(ExitFailure, fmt.Sprintf("partition %d: chain integrity violated", opts.Partition))
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&opts.Partition, "partition", 0, "partition (union) id (required)")
	_ = cmd.MarkFlagRequired("partition")

	return cmd
}
