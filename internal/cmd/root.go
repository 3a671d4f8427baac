package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	serverURL string

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Detect, track and surface HTTP 429 rate limits",
	Long: `ratewatch observes HTTP traffic for 429 Too Many Requests responses,
works out when each limit resets, and keeps per-domain state that UI
surfaces and a remote collector can follow.

Run "ratewatch serve" for the long-running service; the other commands
talk to it over HTTP or operate on the configured store directly.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. Server mode will initialize proper telemetry later.
	observability.DisableGlobalTelemetry()

	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/"+config.AppName+"/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "base URL of a running ratewatch server (default from server.host/server.port)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))
}

// initConfig wires the CLI logger and points config loading at --config.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	if cfgFile != "" {
		config.SetConfigFile(cfgFile)
	}

	// RATEWATCH_SERVER_URL overrides the server address for client commands.
	viper.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	viper.AutomaticEnv()

	if verbose {
		path := cfgFile
		if path == "" {
			path = config.DefaultConfigPath()
		}
		observability.CLILogger.Debug("Config file", zap.String("path", path))
	}
}
