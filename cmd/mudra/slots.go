package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/control"
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Print the slot to CC table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLOT\tCC\tSOURCE")
		for _, s := range control.All() {
			source := "finger extension"
			if s == control.Depth {
				source = "palm depth"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", s, s.CC(), source)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(slotsCmd)
}
