package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/invoice-ledger/internal/app"
	"github.com/angelmondragon/invoice-ledger/pkg/config"
	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

var version = "dev"

type cli struct {
	loadConfig func() (*config.Config, error)
	openDB     func(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, func(), error)

	cfg     *config.Config
	logg    *logger.Logger
	client  *db.Client
	svcs    *app.Services
	closeDB func()
}

// services opens the database on first use so commands that only need
// configuration never dial it.
func (c *cli) services(ctx context.Context) (*app.Services, error) {
	if c.svcs != nil {
		return c.svcs, nil
	}
	client, closeFn, err := c.openDB(ctx, c.cfg, c.logg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c.client, c.closeDB = client, closeFn
	svcs, err := app.NewServices(c.cfg, client, c.logg, nil)
	if err != nil {
		return nil, err
	}
	c.svcs = svcs
	return svcs, nil
}

func (c *cli) close() {
	if c.closeDB != nil {
		c.closeDB()
		c.closeDB = nil
	}
}

func newRootCmd(c *cli) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tooling for the invoice ledger",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			level := logger.ParseLevel(cfg.App.LogLevel)
			if !verbose {
				level = logger.ParseLevel("warn")
			}
			c.logg = logger.New(logger.Options{
				ServiceName: "ledgerctl",
				Level:       level,
				Output:      os.Stderr,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.close()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of warn")

	root.AddCommand(
		newReconcileCmd(c),
		newVerifyCmd(c),
		newHistoryCmd(c),
		newOutboxCmd(c),
		newRunJobCmd(c),
		newTokenCmd(c),
	)
	return root
}
