package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
	"github.com/roach88/civicledger/internal/service"
)

type summaryView struct {
	service.RecordSummary
}

func (v summaryView) RenderText(w io.Writer) {
	r := v.Record
	fmt.Fprintf(w, "%s  %s\n", r.ProjectCode, r.ProjectName)
	fmt.Fprintf(w, "  id:          %s\n", r.ID)
	fmt.Fprintf(w, "  partition:   %d\n", r.PartitionID)
	fmt.Fprintf(w, "  category:    %s\n", r.Category)
	fmt.Fprintf(w, "  status:      %s\n", r.Status)
	fmt.Fprintf(w, "  amount:      %s\n", r.TotalAllocatedAmount.StringFixed(2))
	fmt.Fprintf(w, "  authority:   %s\n", r.ImplementingAuthority)
	fmt.Fprintf(w, "  official:    %s\n", r.ResponsibleOfficial)
	if r.Ward != "" {
		fmt.Fprintf(w, "  ward:        %s\n", r.Ward)
	}
	fmt.Fprintf(w, "  created:     %s by %s\n", ledger.FormatTimestamp(r.CreatedAt), r.CreatorID)
	fmt.Fprintf(w, "  hash:        %s\n", r.RecordHash)
	fmt.Fprintf(w, "  flags:       %d/%d (%s%%)\n", v.FlagCount, v.Population, v.Ratio.StringFixed(2))
	if v.Escalation != nil {
		fmt.Fprintf(w, "  escalation:  %s (%s)\n", v.Escalation.ID, v.Escalation.Status)
	}
	if v.ViewerFlagged {
		fmt.Fprintln(w, "  you flagged this record")
	}
}

type recordList struct {
	Records []ledger.BudgetRecord `json:"records"`
}

func (l recordList) RenderText(w io.Writer) {
	if len(l.Records) == 0 {
		fmt.Fprintln(w, "No records.")
		return
	}
	for _, r := range l.Records {
		fmt.Fprintf(w, "%s  %-14s %-40s %15s  %s\n",
			ledger.FormatTimestamp(r.CreatedAt), r.ProjectCode, r.ProjectName,
			r.TotalAllocatedAmount.StringFixed(2), r.ID)
	}
}

type flagList struct {
	Flags []flagging.Flag `json:"flags"`
}

func (l flagList) RenderText(w io.Writer) {
	if len(l.Flags) == 0 {
		fmt.Fprintln(w, "No flags.")
		return
	}
	for _, f := range l.Flags {
		fmt.Fprintf(w, "%s  %s  %s\n", ledger.FormatTimestamp(f.CreatedAt), f.RecordID, f.Reason)
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var viewer string

	cmd := &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show a record with its flag standing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app) error {
				summary, err := a.svc.Summary(ctx, args[0], viewer)
				if err != nil {
					return rejected("show", err)
				}
				return a.out.Success(summaryView{summary})
			})
		},
	}
	cmd.Flags().StringVar(&viewer, "as", "", "viewer's actor id, to report whether they flagged the record")

	var partition int64
	records := &cobra.Command{
		Use:   "records",
		Short: "List a partition's records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app) error {
				list, err := a.svc.Records(ctx, ledger.PartitionID(partition))
				if err != nil {
					return rejected("show records", err)
				}
				return a.out.Success(recordList{Records: list})
			})
		},
	}
	records.Flags().Int64Var(&partition, "partition", 0, "partition (union) id (required)")
	_ = records.MarkFlagRequired("partition")

	var user string
	flags := &cobra.Command{
		Use:   "flags",
		Short: "List the flags an actor has raised, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app) error {
				list, err := a.svc.FlagsByUser(ctx, user)
				if err != nil {
					return rejected("show flags", err)
				}
				return a.out.Success(flagList{Flags: list})
			})
		},
	}
	flags.Flags().StringVar(&user, "as", "", "actor id (required)")
	_ = flags.MarkFlagRequired("as")

	cmd.AddCommand(records, flags)
	return cmd
}
