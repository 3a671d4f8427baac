package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ratewatch/ratewatch/internal/core/store"
	"github.com/ratewatch/ratewatch/internal/output"
)

var (
	storeResetAll    bool
	storeResetDomain string
	storeResetPrefix string
	storeResetYes    bool
	storeResetDryRun bool
	storeResetForce  bool
)

var storeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete persisted rate limit records",
	Long: `Delete persisted rate limit records. The collector configuration is
never touched.

A running server owns these records, so reset refuses to run while one
answers at the server URL. Use "ratewatch clear" against the server, or
--force to reset anyway.

Examples:
  ratewatch store reset --domain claude.ai
  ratewatch store reset --prefix api. --dry-run
  ratewatch store reset --all --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := resolveOutput(cmd)
		if err != nil {
			return err
		}
		if target.format == output.FormatMarkdown {
			return fmt.Errorf("unsupported output format: %s", target.format)
		}

		query := store.RecordQuery{
			All:    storeResetAll,
			Domain: strings.TrimSpace(storeResetDomain),
			Prefix: strings.TrimSpace(storeResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !storeResetYes && !storeResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		if !storeResetDryRun && !storeResetForce {
			if err := refuseWhileServing(cmd.Context()); err != nil {
				return err
			}
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := store.CountRecords(cmd.Context(), db, query)
		if err != nil {
			return err
		}

		var deleted []string
		if !storeResetDryRun {
			deleted, err = store.ResetRecords(cmd.Context(), db, query)
			if err != nil {
				return err
			}
		}

		sink, err := target.open(cmd, "store.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()
		return writeStoreResetResult(target.format, sink.writer, matched, deleted, storeResetDryRun)
	},
}

// refuseWhileServing fails when a server answers its readiness probe. The
// server owns the record map; deleting under it leaves records it will
// write back and surfaces that are never told.
func refuseWhileServing(ctx context.Context) error {
	api, err := newAPIClient(ctx)
	if err != nil {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := api.Ready(probeCtx); err != nil {
		return nil
	}
	return fmt.Errorf("a ratewatch server is running at %s; use \"ratewatch clear\" instead (or --force)", api.BaseURL())
}

func writeStoreResetResult(format output.Format, w io.Writer, matched int, deleted []string, dryRun bool) error {
	if deleted == nil {
		deleted = []string{}
	}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d rate limit record(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d rate limit record(s)\n", len(deleted), matched)
	return err
}

func init() {
	addOutputFlags(storeResetCmd)
	storeResetCmd.Flags().BoolVar(&storeResetAll, "all", false, "Reset all domains")
	storeResetCmd.Flags().StringVar(&storeResetDomain, "domain", "", "Reset a single domain (exact match)")
	storeResetCmd.Flags().StringVar(&storeResetPrefix, "prefix", "", "Reset domains with matching prefix")
	storeResetCmd.Flags().BoolVar(&storeResetYes, "yes", false, "Confirm destructive reset")
	storeResetCmd.Flags().BoolVar(&storeResetDryRun, "dry-run", false, "Show what would be deleted")
	storeResetCmd.Flags().BoolVar(&storeResetForce, "force", false, "Reset even while a server is running")
}
