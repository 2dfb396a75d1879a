package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var showSnapshot int
	cmd := &cobra.Command{
		Use:   "history <invoice-id>",
		Short: "List the recorded versions of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid invoice id %q", args[0])
			}
			svcs, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if showSnapshot > 0 {
				version, err := svcs.Versions.Get(cmd.Context(), invoiceID, showSnapshot)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(version.Snapshot))
				return nil
			}

			versions, err := svcs.Versions.List(cmd.Context(), invoiceID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tCHANGE\tFINALIZED\tEDITED BY\tCREATED\tSUMMARY")
			for _, v := range versions {
				fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\t%s\n", v.VersionNumber, v.ChangeType, v.WasFinalized, v.EditedBy, v.CreatedAt, v.DiffSummary)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&showSnapshot, "snapshot", 0, "print the stored snapshot of this version number instead of the list")
	return cmd
}
