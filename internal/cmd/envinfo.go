package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== " + config.AppName + " environment ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + config.AppName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		loaded, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}
		cfg := redactConfig(*loaded)

		log.Info("Server:")
		log.Info(fmt.Sprintf("  Address:        %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("  Write Timeout:  " + cfg.Server.WriteTimeout.String())
		log.Info("  Config File:    " + config.DefaultConfigPath())
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("")

		log.Info("Store:")
		log.Info("  Driver:         "+cfg.Store.Driver, zap.String("store_driver", cfg.Store.Driver))
		switch {
		case cfg.Store.Driver == "redis":
			log.Info("  Redis URL:      " + cfg.Store.Redis.URL)
			log.Info("  Namespace:      " + cfg.Store.Redis.Namespace)
		case strings.TrimSpace(cfg.Store.URL) != "":
			log.Info("  URL:            " + cfg.Store.URL)
		default:
			log.Info("  Path:           " + cfg.Store.Path)
		}
		log.Info("")

		log.Info("Tracking:")
		sweep := cfg.Tracker.SweepSchedule
		if sweep == "" {
			sweep = "(disabled)"
		}
		log.Info("  Sweep Schedule: " + sweep)
		log.Info(fmt.Sprintf("  Queue Size:     %d", cfg.Intercept.QueueSize))
		log.Info(fmt.Sprintf("  Max Body Bytes: %d", cfg.Intercept.MaxBodyBytes))
		log.Info("")

		log.Info("Collector:")
		log.Info(fmt.Sprintf("  Enabled:        %t", cfg.Collector.Enabled), zap.Bool("collector_enabled", cfg.Collector.Enabled))
		log.Info("  Endpoint:       " + orUnset(cfg.Collector.EndpointURL))
		log.Info(fmt.Sprintf("  Retries:        %d every %s", cfg.Collector.RetryAttempts, cfg.Collector.RetryDelay))
		log.Info("")

		log.Info("Surfaces:")
		hosts := "(all origins)"
		if len(cfg.Surfaces.AllowedHosts) > 0 {
			hosts = strings.Join(cfg.Surfaces.AllowedHosts, ", ")
		}
		log.Info("  Allowed Hosts:  " + hosts)
		log.Info(fmt.Sprintf("  Buffer Size:    %d", cfg.Surfaces.BufferSize))
		log.Info("")

		log.Info("Proxy Upstreams:")
		if len(cfg.Proxy.Upstreams) == 0 {
			log.Info("  (none)")
		}
		names := make([]string, 0, len(cfg.Proxy.Upstreams))
		for name := range cfg.Proxy.Upstreams {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			log.Info(fmt.Sprintf("  %s -> %s", name, cfg.Proxy.Upstreams[name]))
		}
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(unset)"
	}
	return value
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
