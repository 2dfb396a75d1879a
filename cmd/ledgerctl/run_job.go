package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunJobCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <name>",
		Short: "Run one maintenance job once, outside the cron worker lock",
		Long: `Runs a registered maintenance job once: balance-drift, invoice-autolock,
idempotency-retention or outbox-retention.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := svcs.CronJobs(c.cfg, c.logg)
			if err != nil {
				return err
			}
			job, ok := jobs.Registry.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown job %q", args[0])
			}
			if err := job.Run(cmd.Context()); err != nil {
				return fmt.Errorf("%s: %w", job.Name(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s complete\n", job.Name())
			return nil
		},
	}
}
