package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ratewatch/ratewatch/internal/collector"
	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/internal/core"
	"github.com/ratewatch/ratewatch/internal/core/store"
	errwrap "github.com/ratewatch/ratewatch/internal/errors"
	"github.com/ratewatch/ratewatch/internal/intercept"
	"github.com/ratewatch/ratewatch/internal/metrics"
	"github.com/ratewatch/ratewatch/internal/notify"
	"github.com/ratewatch/ratewatch/internal/observability"
	"github.com/ratewatch/ratewatch/internal/server"
	"github.com/ratewatch/ratewatch/internal/server/handlers"
	"github.com/ratewatch/ratewatch/internal/tracker"
)

var (
	serverPort int
	serverHost string
)

// signalHealthChecker implements HealthChecker for signal system
type signalHealthChecker struct{}

func (s signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil // Signal handlers are registered before the listener starts
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// sweeperHealthChecker fails when a configured expiry sweep is not running.
type sweeperHealthChecker struct {
	sweeper  *tracker.Sweeper
	schedule string
}

func (s sweeperHealthChecker) CheckHealth(ctx context.Context) error {
	if s.schedule != "" && !s.sweeper.Running() {
		return errwrap.NewServiceUnavailableError("expiry sweep not running")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rate limit service",
	Long: `Start the HTTP service: detection ingest, rate limit queries, the
surface event stream, the collector forwarder and any configured
intercepting proxies.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (listener and store changes need a restart)

On shutdown the HTTP server stops first, queued detections are drained
into the tracker, then the tracker, store and logger are closed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		overrides := map[string]any{}
		if cmd.Flags().Changed("host") {
			overrides["server.host"] = serverHost
		}
		if cmd.Flags().Changed("port") {
			overrides["server.port"] = serverPort
		}
		cfg, err := config.Load(ctx, overrides)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
		}

		// Initialize server logger with namespace
		observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Profile, config.AppName)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}
		metrics.SetServerStartTime(time.Now().Unix())

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("store_driver", cfg.Store.Driver),
			zap.Int("metrics_port", observability.GetMetricsPort()))

		backend, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return errwrap.WrapServiceUnavailable(ctx, err, "store open failed")
		}

		broker := notify.NewBroker(cfg.Surfaces.AllowedHosts)
		tr := tracker.New(backend,
			tracker.WithPublisher(broker),
			tracker.WithSubmitter(collector.NewFromConfig(cfg.Collector)),
			tracker.WithCollectorSeed(core.CollectorConfig{
				EndpointURL: cfg.Collector.EndpointURL,
				Enabled:     cfg.Collector.Enabled,
			}),
			tracker.WithSweepSchedule(cfg.Tracker.SweepSchedule),
		)
		if err := tr.Start(ctx); err != nil {
			_ = backend.Close()
			return errwrap.WrapInternal(ctx, err, "tracker start failed")
		}
		interceptor := intercept.NewFromConfig(tr, cfg.Intercept)

		// Initialize health manager
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("signal_handlers", signalHealthChecker{})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{}, handlers.NonCritical())
		}
		hm.RegisterChecker("store", handlers.StoreChecker{Store: backend},
			handlers.NonCritical(), handlers.OnProbes(handlers.ProbeReady, handlers.ProbeStartup))
		hm.RegisterChecker("tracker", tr)
		hm.RegisterChecker("sweeper", sweeperHealthChecker{
			sweeper:  tr.Sweeper(),
			schedule: cfg.Tracker.SweepSchedule,
		}, handlers.NonCritical(), handlers.OnProbes(handlers.ProbeReady))

		srv := server.New(cfg.Server, server.Deps{
			Tracker:     tr,
			Broker:      broker,
			Interceptor: interceptor,
			Backend:     backend,
			Health:      hm,
			Upstreams:   cfg.Proxy.Upstreams,
			BufferSize:  cfg.Surfaces.BufferSize,
			Pprof:       cfg.Debug.PprofEnabled,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := observability.SyncLoggers(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Closing store...", zap.String("driver", backend.Driver()))
			if err := backend.Close(); err != nil {
				return errwrap.WrapInternal(ctx, err, "store close failed")
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Stopping tracker...")
			return tr.Close()
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Draining detection queue...")
			drainCtx, drainCancel := context.WithTimeout(ctx, shutdownTimeout)
			defer drainCancel()
			if err := interceptor.Close(drainCtx); err != nil {
				logger.Warn("Detection queue not fully drained", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, shutdownCancel := context.WithTimeout(ctx, shutdownTimeout)
			defer shutdownCancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			reloaded, err := config.Load(ctx, overrides)
			if err != nil {
				logger.Error("Failed to reload config", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			if reloaded.Server != cfg.Server || reloaded.Store.Driver != cfg.Store.Driver {
				logger.Warn("Listener or store settings changed; restart to apply them")
			}
			logger.Info("Configuration reloaded successfully",
				zap.String("log_level", reloaded.Logging.Level),
				zap.Int("allowed_hosts", len(reloaded.Surfaces.AllowedHosts)))
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			// the signal listener exits once the server is down
			defer cancel()
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			if err := signals.Listen(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Signal handler error", zap.Error(err))
				return err
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
}
