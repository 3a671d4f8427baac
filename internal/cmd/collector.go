package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ratewatch/ratewatch/internal/core"
)

var (
	collectorEndpoint string
	collectorEnable   bool
	collectorDisable  bool
)

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Manage the remote collector on a running server",
}

var collectorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the collector configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		cfg, err := api.Collector(cmd.Context())
		if err != nil {
			return err
		}
		return writeCollectorConfig(cmd.OutOrStdout(), cfg)
	},
}

var collectorSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the collector configuration",
	Long: `Update the collector endpoint and/or enabled flag. Only the values
passed are changed.

Examples:
  ratewatch collector set --endpoint https://collector.example.com/ingest --enable
  ratewatch collector set --disable`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if collectorEnable && collectorDisable {
			return errors.New("--enable and --disable are mutually exclusive")
		}

		var update core.CollectorConfigUpdate
		if cmd.Flags().Changed("endpoint") {
			endpoint := collectorEndpoint
			update.EndpointURL = &endpoint
		}
		if collectorEnable || collectorDisable {
			enabled := collectorEnable
			update.Enabled = &enabled
		}
		if update.EndpointURL == nil && update.Enabled == nil {
			return errors.New("nothing to change: pass --endpoint, --enable or --disable")
		}

		api, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		cfg, err := api.SetCollector(cmd.Context(), update)
		if err != nil {
			return err
		}
		return writeCollectorConfig(cmd.OutOrStdout(), cfg)
	},
}

var collectorTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a synthetic submission to the collector",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		sub, err := api.TestCollector(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch sub.State {
		case core.SubmissionSuccess:
			_, err = fmt.Fprintf(out, "Collector accepted test submission (HTTP %d, %d attempt(s))\n", sub.StatusCode, sub.Attempts)
		default:
			_, err = fmt.Fprintf(out, "Collector test failed after %d attempt(s): %s\n", sub.Attempts, sub.Error)
			if err == nil {
				err = fmt.Errorf("collector test failed: %s", sub.Error)
			}
		}
		return err
	},
}

func writeCollectorConfig(w io.Writer, cfg core.CollectorConfig) error {
	payload, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

func init() {
	collectorSetCmd.Flags().StringVar(&collectorEndpoint, "endpoint", "", "Collector endpoint URL (empty clears it)")
	collectorSetCmd.Flags().BoolVar(&collectorEnable, "enable", false, "Enable submissions")
	collectorSetCmd.Flags().BoolVar(&collectorDisable, "disable", false, "Disable submissions")

	collectorCmd.AddCommand(collectorShowCmd)
	collectorCmd.AddCommand(collectorSetCmd)
	collectorCmd.AddCommand(collectorTestCmd)
	rootCmd.AddCommand(collectorCmd)
}
