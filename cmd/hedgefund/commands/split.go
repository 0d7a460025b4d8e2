package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elys-network/hedgefund/internal/config"
	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/utils"
	"github.com/elys-network/hedgefund/internal/vault"
)

func splitCmd() *cobra.Command {
	var primary, secondary int64

	cmd := &cobra.Command{
		Use:   "split <amount>",
		Short: "Show how an amount in wei is split across the three legs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := utils.ParseAmount(args[0])
			if err != nil {
				return err
			}
			alloc, err := vault.Split(amount, types.AllocationParameters{
				PrimarySwapPercent:   primary,
				SecondarySwapPercent: secondary,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "amount\t%s\n", alloc.Amount)
			fmt.Fprintf(w, "%s\t%s\n", types.LegPrimarySwap, alloc.PortionA)
			fmt.Fprintf(w, "portion_b\t%s\n", alloc.PortionB)
			fmt.Fprintf(w, "  idle\t%s\n", alloc.IdleB)
			fmt.Fprintf(w, "  %s\t%s\n", types.LegSecondarySwap, alloc.SwapB)
			fmt.Fprintf(w, "%s\t%s\n", types.LegLending, alloc.PortionC)
			return w.Flush()
		},
	}

	cmd.Flags().Int64Var(&primary, "primary", config.DefaultAllocationParameters.PrimarySwapPercent, "percent sent to the primary swap venue")
	cmd.Flags().Int64Var(&secondary, "secondary", config.DefaultAllocationParameters.SecondarySwapPercent, "percent forming portion B, half of which is swapped")
	return cmd
}
