package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/civicledger/internal/flagging"
	"github.com/roach88/civicledger/internal/ledger"
)

// ActorOptions holds flags for the actor commands.
type ActorOptions struct {
	*RootOptions
	Role      string
	Partition int64
	Name      string
}

type actorView struct {
	flagging.Actor
}

func (v actorView) RenderText(w io.Writer) {
	fmt.Fprintf(w, "%s  role=%s partition=%d", v.ID, v.Role, v.PartitionID)
	if v.Name != "" {
		fmt.Fprintf(w, " name=%q", v.Name)
	}
	fmt.Fprintln(w)
}

// NewActorCommand creates the actor command group.
func NewActorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Register and inspect actors",
	}

	add := &cobra.Command{
		Use:   "add <actor-id>",
		Short: "Register or replace an actor",
		Long: `Register an actor in a partition, or replace an existing one.

Roles:
  citizen   may flag records; counted in the flag ratio
  chairman  may append records to their own partition
  admin     may flag records; not counted

Example:
  civicledger actor add chair-kibera --role chairman --partition 1 --name "Grace Wanjiru"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				actor := flagging.Actor{
					ID:          args[0],
					PartitionID: ledger.PartitionID(opts.Partition),
					Role:        flagging.Role(opts.Role),
					Name:        opts.Name,
				}
				if err := a.svc.RegisterActor(ctx, actor); err != nil {
					return rejected("actor add", err)
				}
				return a.out.Success(actorView{actor})
			})
		},
	}
	add.Flags().StringVar(&opts.Role, "role", string(flagging.RoleCitizen), "actor role (citizen|chairman|admin)")
	add.Flags().Int64Var(&opts.Partition, "partition", 0, "partition (union) id (required)")
	add.Flags().StringVar(&opts.Name, "name", "", "display name")
	_ = add.MarkFlagRequired("partition")

	get := &cobra.Command{
		Use:   "get <actor-id>",
		Short: "Show a registered actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				actor, err := a.svc.Actor(ctx, args[0])
				if err != nil {
					return rejected("actor get", err)
				}
				return a.out.Success(actorView{actor})
			})
		},
	}

	cmd.AddCommand(add, get)
	return cmd
}
