package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/core/store"
	"github.com/ratewatch/ratewatch/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation, the store and a running server.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		log := observability.CLILogger

		log.Info("=== " + config.AppName + " doctor ===")
		log.Info("")

		allChecks := true
		totalChecks := 7
		step := func(n int, name string) string {
			return fmt.Sprintf("[%d/%d] Checking %s...", n, totalChecks, name)
		}

		// Check 1: Go version
		goVersion := runtime.Version()
		log.Info(step(1, "Go version")+" ✅ "+goVersion, zap.String("go_version", goVersion))

		// Check 2: Gofulmen and Crucible
		version := crucible.GetVersion()
		if version.Gofulmen != "" && version.Crucible != "" {
			log.Info(fmt.Sprintf("%s ✅ gofulmen v%s, crucible v%s", step(2, "SSOT libraries"), version.Gofulmen, version.Crucible))
		} else {
			log.Warn(step(2, "SSOT libraries") + " ⚠️  version information unavailable")
			allChecks = false
		}

		// Check 3: Config
		cfg, cfgErr := config.Load(ctx)
		if cfgErr != nil {
			log.Error(step(3, "configuration")+" ❌ "+cfgErr.Error(), zap.Error(cfgErr))
			allChecks = false
		} else {
			configPath := config.DefaultConfigPath()
			if cfgFile != "" {
				configPath = cfgFile
			}
			log.Info(fmt.Sprintf("%s ✅ %s (%s)", step(3, "configuration"), configPath, existenceStatus(fileExists(configPath))))
		}

		// Check 4: Sweep schedule
		switch {
		case cfgErr != nil:
			log.Warn(step(4, "sweep schedule") + " ⚠️  skipped (config not loaded)")
		case cfg.Tracker.SweepSchedule == "":
			log.Warn(step(4, "sweep schedule") + " ⚠️  disabled; expired records are only dropped on query")
		default:
			if _, err := cron.ParseStandard(cfg.Tracker.SweepSchedule); err != nil {
				log.Error(step(4, "sweep schedule")+" ❌ "+err.Error(), zap.String("schedule", cfg.Tracker.SweepSchedule))
				allChecks = false
			} else {
				log.Info(step(4, "sweep schedule") + " ✅ " + cfg.Tracker.SweepSchedule)
			}
		}

		// Check 5: Store
		if cfgErr != nil {
			log.Warn(step(5, "store") + " ⚠️  skipped (config not loaded)")
		} else if detail, err := checkStore(ctx, cfg.Store); err != nil {
			log.Error(step(5, "store")+" ❌ "+err.Error(), zap.String("driver", cfg.Store.Driver), zap.Error(err))
			allChecks = false
		} else {
			log.Info(step(5, "store")+" ✅ "+detail, zap.String("driver", cfg.Store.Driver))
		}

		// Check 6: Collector
		switch {
		case cfgErr != nil:
			log.Warn(step(6, "collector") + " ⚠️  skipped (config not loaded)")
		case cfg.Collector.Enabled && cfg.Collector.EndpointURL == "":
			log.Warn(step(6, "collector") + " ⚠️  enabled without an endpoint; submissions are skipped")
		case cfg.Collector.Enabled:
			log.Info(step(6, "collector") + " ✅ " + cfg.Collector.EndpointURL)
		default:
			log.Info(step(6, "collector") + " ✅ disabled")
		}

		// Check 7: Running server (informational)
		api, err := newAPIClient(ctx)
		if err != nil {
			log.Warn(step(7, "server") + " ⚠️  " + err.Error())
		} else {
			readyCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := api.Ready(readyCtx)
			cancel()
			if err != nil {
				log.Info(fmt.Sprintf("%s -  not reachable at %s", step(7, "server"), api.BaseURL()))
			} else {
				log.Info(fmt.Sprintf("%s ✅ ready at %s", step(7, "server"), api.BaseURL()))
			}
		}

		log.Info("")
		if allChecks {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", config.AppName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		log.Info("")
		log.Info("=== End Diagnostics ===")
	},
}

// checkStore opens and pings the configured backend.
func checkStore(ctx context.Context, cfg config.StoreConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer backend.Close() //nolint:errcheck

	if err := backend.Ping(ctx); err != nil {
		return "", err
	}

	count, err := store.CountRecords(ctx, backend, store.RecordQuery{All: true})
	if err != nil {
		return "", err
	}

	location := cfg.Path
	switch {
	case backend.Driver() == store.DriverRedis:
		location = redactURL(cfg.Redis.URL)
	case cfg.URL != "":
		location = redactURL(cfg.URL)
	default:
		if abs, err := filepath.Abs(location); err == nil {
			location = abs
		}
	}
	return fmt.Sprintf("%s %s (%d record(s))", backend.Driver(), location, count), nil
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
