package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ratewatch/ratewatch/internal/core/store"
	"github.com/ratewatch/ratewatch/internal/output"
)

var (
	storeListAll    bool
	storeListDomain string
	storeListPrefix string
)

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted rate limit records",
	Long: `List persisted rate limit records, including ones that have expired
but not yet been swept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := resolveOutput(cmd)
		if err != nil {
			return err
		}

		query := store.RecordQuery{
			All:    storeListAll,
			Domain: strings.TrimSpace(storeListDomain),
			Prefix: strings.TrimSpace(storeListPrefix),
		}
		if !query.All && query.Domain == "" && query.Prefix == "" {
			query.All = true
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		records, err := store.ListRecords(cmd.Context(), db, query)
		if err != nil {
			return err
		}

		return target.write(cmd, "store.list", func(f output.Formatter) (string, error) {
			return f.FormatRecords(records)
		})
	},
}

func init() {
	addOutputFlags(storeListCmd)
	storeListCmd.Flags().BoolVar(&storeListAll, "all", false, "List all records (default)")
	storeListCmd.Flags().StringVar(&storeListDomain, "domain", "", "List a single domain (exact match)")
	storeListCmd.Flags().StringVar(&storeListPrefix, "prefix", "", "List domains with matching prefix")
}
