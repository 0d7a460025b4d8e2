package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elys-network/hedgefund/internal/codec"
)

func selectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selectors",
		Short: "Print the 4-byte selectors of the vault and venue interfaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTRACT\tSELECTOR\tSIGNATURE\tKIND")
			for _, group := range []struct {
				name  string
				codec *codec.Codec
			}{{"vault", codec.Vault}, {"venue", codec.Venue}} {
				for _, m := range group.codec.Methods() {
					kind := "nonpayable"
					switch {
					case m.Payable:
						kind = "payable"
					case m.View:
						kind = "view"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", group.name, m.Selector, m.Signature, kind)
				}
			}
			return w.Flush()
		},
	}
}
