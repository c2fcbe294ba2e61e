package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/civicledger/internal/service"
)

// FlagOptions holds flags for the flag command.
type FlagOptions struct {
	*RootOptions
	Actor  string
	Reason string
}

type flagView struct {
	service.FlagResult
}

func (v flagView) RenderText(w io.Writer) {
	fmt.Fprintf(w, "flagged %s  flags=%d/%d ratio=%s%%\n",
		v.RecordID, v.FlagCount, v.Population, v.Ratio.StringFixed(2))
	if v.Escalated && v.Escalation != nil {
		fmt.Fprintf(w, "escalated: %s since %s (%d flags, %s%%)\n",
			v.Escalation.ID,
			v.Escalation.TriggeredAt.Format("2006-01-02 15:04:05Z07:00"),
			v.Escalation.FlagCount,
			v.Escalation.FlagRatio.StringFixed(2),
		)
	}
}

// NewFlagCommand creates the flag command.
func NewFlagCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlagOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "flag <record-id>",
		Short: "Flag a budget record as suspicious",
		Long: `Record a flag on a budget record on behalf of an actor in the record's
partition. Each actor may flag a record once. When the share of the
partition's citizens who flagged the record rises above the threshold, the
record is escalated.

Example:
  civicledger flag 0190d8a4-... --as citizen-42 --reason "no works on site"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.svc.AddFlag(ctx, args[0], opts.Actor, opts.Reason)
				if err != nil {
					return rejected("flag", err)
				}
				return a.out.Success(flagView{result})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "as", "", "flagging actor's id (required)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the record looks wrong (default \"suspicious\")")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}
