package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/ratewatch/ratewatch/internal/tracker"
)

var (
	clearAll bool
	clearYes bool
)

var clearCmd = &cobra.Command{
	Use:   "clear [domain]",
	Short: "Clear rate limit state on a running server",
	Long: `Clear the rate limit for one domain, or every domain with --all.

Surfaces following the server are notified of the change.

Examples:
  ratewatch clear claude.ai
  ratewatch clear --all --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case clearAll && len(args) > 0:
			return errors.New("pass a domain or --all, not both")
		case !clearAll && len(args) == 0:
			return errors.New("must specify a domain or --all")
		case clearAll && !clearYes:
			return errors.New("--all requires --yes")
		}

		api, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if clearAll {
			domains, err := api.ClearAll(cmd.Context())
			if err != nil {
				return err
			}
			return writeClearedSummary(out, domains)
		}

		domain := tracker.NormalizeDomain(args[0])
		existed, err := api.Clear(cmd.Context(), domain)
		if err != nil {
			return err
		}
		if !existed {
			_, err = fmt.Fprintf(out, "%s was not rate limited\n", domain)
			return err
		}
		_, err = fmt.Fprintf(out, "Cleared %s\n", domain)
		return err
	},
}

func writeClearedSummary(w io.Writer, domains []string) error {
	if len(domains) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to clear")
		return err
	}
	lines := []string{fmt.Sprintf("Cleared %d domain(s)", len(domains)), ""}
	lines = append(lines, domains...)
	_, err := fmt.Fprint(w, ascii.DrawBox(strings.Join(lines, "\n"), 0))
	return err
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().BoolVar(&clearAll, "all", false, "Clear every domain")
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm clearing every domain")
}
