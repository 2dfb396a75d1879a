package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/invoice-ledger/pkg/outbox"
)

func newOutboxCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and requeue dead-lettered outbox events",
	}

	var limit int
	list := &cobra.Command{
		Use:   "dlq",
		Short: "List dead-lettered events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.services(cmd.Context()); err != nil {
				return err
			}
			rows, err := outbox.NewDLQRepository(c.client.DB()).List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EVENT\tTYPE\tAGGREGATE\tREASON\tATTEMPTS\tFAILED")
			for _, row := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", row.EventID, row.EventType, row.AggregateID, row.ErrorReason, row.AttemptCount, row.FailedAt.UTC().Format("2006-01-02T15:04:05Z"))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")

	requeue := &cobra.Command{
		Use:   "requeue <event-id>",
		Short: "Reset a dead-lettered event so the publisher retries it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			if _, err := c.services(cmd.Context()); err != nil {
				return err
			}
			if err := outbox.NewDLQRepository(c.client.DB()).Requeue(cmd.Context(), eventID); err != nil {
				if errors.Is(err, outbox.ErrDLQEntryNotFound) {
					return fmt.Errorf("event %s is not dead-lettered", eventID)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", eventID)
			return nil
		},
	}

	cmd.AddCommand(list, requeue)
	return cmd
}
