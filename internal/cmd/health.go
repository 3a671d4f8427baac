package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/config"
	errwrap "github.com/ratewatch/ratewatch/internal/errors"
	"github.com/ratewatch/ratewatch/internal/observability"
)

var healthRemote bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Run a self-health check to verify the application can start successfully.
With --remote the readiness probe of the running server is checked as well.`,
	Run: func(cmd *cobra.Command, args []string) {
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		log.Debug("Version check passed", zap.String("version", versionInfo.Version))
		log.Info("✅ Version information available")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.NewConfigInvalidError(err.Error()))
			return
		}
		log.Info("✅ Configuration loaded", zap.String("store_driver", cfg.Store.Driver))

		if healthRemote {
			api, err := newAPIClient(cmd.Context())
			if err != nil {
				ExitWithCode(log, foundry.ExitConfigInvalid, "Server address invalid", errwrap.NewConfigInvalidError(err.Error()))
				return
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			err = api.Ready(ctx)
			cancel()
			if err != nil {
				ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Server not ready", errwrap.NewServiceUnavailableError(err.Error()))
				return
			}
			log.Info("✅ Server ready", zap.String("server", api.BaseURL()))
		}

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthRemote, "remote", false, "also check the running server's readiness probe")
}
