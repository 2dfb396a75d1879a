// Command ledgerctl runs operator tasks against the ledger database: balance
// reconciliation, invoice history, dead-lettered outbox events and access
// tokens for local testing.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/invoice-ledger/pkg/config"
	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	c := &cli{
		loadConfig: config.Load,
		openDB: func(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, func(), error) {
			client, err := db.New(ctx, cfg.DB, logg)
			if err != nil {
				return nil, nil, err
			}
			return client, func() { _ = client.Close() }, nil
		},
	}
	if err := newRootCmd(c).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		os.Exit(1)
	}
}
