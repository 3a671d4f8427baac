package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/server/handlers"
)

var (
	extended      bool
	versionRemote bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information. Use --extended for full details including
Crucible and Go versions, and --remote to also ask a running server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", config.AppName, versionInfo.Version)
		if extended {
			writeExtendedVersion(out)
		}

		if !versionRemote {
			return nil
		}
		api, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		remote, err := api.Version(cmd.Context())
		if err != nil {
			return fmt.Errorf("query server version: %w", err)
		}
		fmt.Fprintf(out, "\nServer %s: %s %s (commit %s, %s)\n",
			api.BaseURL(), remote.App.Name, remote.App.Version, remote.App.Commit, remote.Runtime.Platform)
		return nil
	},
}

func writeExtendedVersion(out io.Writer) {
	info := handlers.CurrentVersion()
	fmt.Fprintf(out, "Commit: %s\n", info.App.Commit)
	fmt.Fprintf(out, "Built: %s\n", info.App.BuildDate)
	fmt.Fprintf(out, "Go: %s (%s)\n", info.App.GoVersion, info.Runtime.Platform)
	fmt.Fprintf(out, "Gofulmen: %s\n", info.Dependencies.Gofulmen)
	fmt.Fprintf(out, "Crucible: %s\n", info.Dependencies.Crucible)
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	versionCmd.Flags().BoolVar(&versionRemote, "remote", false, "also print the running server's version")
}
