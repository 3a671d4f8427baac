package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/core/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and reset persisted rate limit state",
	Long: `Operate directly on the configured store (libsql, redis or memory).

A running server owns the records and keeps its own in-memory view, so
"store reset" refuses to run while one is reachable. Use "ratewatch clear"
to reset a running server.`,
}

func openStore(ctx context.Context) (store.Backend, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store.Open(ctx, cfg.Store)
}

func init() {
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeResetCmd)
	rootCmd.AddCommand(storeCmd)
}
