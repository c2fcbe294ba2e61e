package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/civicledger/internal/ledger"
	"github.com/roach88/civicledger/internal/service"
)

type escalationList struct {
	Partition   ledger.PartitionID          `json:"partition_id"`
	Escalations []service.PendingEscalation `json:"escalations"`
}

func (l escalationList) RenderText(w io.Writer) {
	if len(l.Escalations) == 0 {
		fmt.Fprintf(w, "No pending escalations in partition %d.\n", l.Partition)
		return
	}
	for _, e := range l.Escalations {
		fmt.Fprintf(w, "%s  %-14s triggered at %s%% (%d flags), now %s%% (%d flags)  %s\n",
			ledger.FormatTimestamp(e.Escalation.TriggeredAt),
			e.Record.ProjectCode,
			e.Escalation.FlagRatio.StringFixed(2),
			e.Escalation.FlagCount,
			e.Ratio.StringFixed(2),
			e.FlagCount,
			e.Record.ID,
		)
	}
}

// NewEscalationsCommand creates the escalations command.
func NewEscalationsCommand(rootOpts *RootOptions) *cobra.Command {
	var partition int64

	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "List a partition's pending escalations",
		Long: `List the pending escalations of a partition, most recently triggered
first, with each record's flag standing at trigger time and now.

Example:
  civicledger escalations --partition 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app) error {
				list, err := a.svc.PendingEscalations(ctx, ledger.PartitionID(partition))
				if err != nil {
					return rejected("escalations", err)
				}
				return a.out.Success(escalationList{
					Partition:   ledger.PartitionID(partition),
					Escalations: list,
				})
			})
		},
	}

	cmd.Flags().Int64Var(&partition, "partition", 0, "partition (union) id (required)")
	_ = cmd.MarkFlagRequired("partition")

	return cmd
}
