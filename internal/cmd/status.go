package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/output"
	"github.com/ratewatch/ratewatch/internal/tracker"
)

var statusCmd = &cobra.Command{
	Use:   "status [domain]",
	Short: "Show live rate limits from a running server",
	Long: `Show live rate limits tracked by a running ratewatch server.

With a domain argument only that domain is shown; a domain that is not
rate limited prints an empty result.

Examples:
  ratewatch status
  ratewatch status claude.ai --output-format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := resolveOutput(cmd)
		if err != nil {
			return err
		}

		api, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}

		var statuses []core.Status
		name := "all"
		if len(args) == 1 {
			domain := tracker.NormalizeDomain(args[0])
			name = domain
			status, err := api.Status(cmd.Context(), domain)
			if err != nil {
				return err
			}
			if status != nil {
				statuses = append(statuses, *status)
			}
		} else {
			statuses, err = api.List(cmd.Context())
			if err != nil {
				return err
			}
		}

		return target.write(cmd, "status."+name, func(f output.Formatter) (string, error) {
			return f.FormatStatuses(statuses)
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addOutputFlags(statusCmd)
}
