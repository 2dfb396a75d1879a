package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/invoice-ledger/internal/balances"
)

func newReconcileCmd(c *cli) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "reconcile <customer-id>",
		Short: "Recompute one customer's rollups from invoices, payments and credit notes",
		Example: `  ledgerctl reconcile 5b0c2f5e-6a55-4d7e-9a7e-1f5f0f3b2c11
  ledgerctl reconcile 5b0c2f5e-6a55-4d7e-9a7e-1f5f0f3b2c11 --repair`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid customer id %q", args[0])
			}
			svcs, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			var drift *balances.Drift
			if repair {
				drift, err = svcs.Balances.Repair(cmd.Context(), customerID)
			} else {
				drift, err = svcs.Balances.Verify(cmd.Context(), customerID)
			}
			if err != nil {
				return err
			}
			return printDrift(cmd.OutOrStdout(), drift, repair)
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "overwrite drifted rollups with the recomputed values")
	return cmd
}

func newVerifyCmd(c *cli) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every customer's rollups for drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := svcs.CronJobs(c.cfg, c.logg)
			if err != nil {
				return err
			}
			report, scanErr := jobs.Drift.Scan(cmd.Context(), repair)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "checked=%d drifted=%d repaired=%d\n", report.Checked, report.Drifted, report.Repaired)
			for i := range report.Drifts {
				if err := printDrift(out, &report.Drifts[i], repair); err != nil {
					return err
				}
			}
			return scanErr
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "repair every drifted customer")
	return cmd
}

func printDrift(out io.Writer, drift *balances.Drift, repaired bool) error {
	if !drift.HasDrift() {
		fmt.Fprintf(out, "customer %s: in balance\n", drift.CustomerID)
		return nil
	}
	state := "drifted"
	if repaired {
		state = "repaired"
	}
	fmt.Fprintf(out, "customer %s: %s\n", drift.CustomerID, state)
	for _, f := range drift.Fields {
		fmt.Fprintf(out, "  %-16s stored=%s expected=%s\n", f.Field, f.Stored.StringFixed(2), f.Expected.StringFixed(2))
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(drift.Expected)
}
