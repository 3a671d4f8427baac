package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger creation", func(t *testing.T) {
		observability.InitCLILogger("ratewatch-test", false)
		require.NotNil(t, observability.CLILogger)

		observability.CLILogger.Info("Test CLI log message", zap.String("test", "value"))
	})

	t.Run("Structured server logger", func(t *testing.T) {
		observability.InitServerLogger("ratewatch-test", "debug", "structured", "ratewatch")
		require.NotNil(t, observability.ServerLogger)

		observability.ServerLogger.Info("Test structured log message",
			zap.String("component", "test"),
			zap.Int("request_id", 123))
	})

	t.Run("Simple server logger", func(t *testing.T) {
		observability.InitServerLogger("ratewatch-test", "warn", "simple")
		require.NotNil(t, observability.ServerLogger)

		observability.ServerLogger.Warn("Simple profile message")
	})

	t.Run("Verbose CLI logger", func(t *testing.T) {
		logger, err := logging.NewCLI("verbose-test")
		require.NoError(t, err)

		logger.SetLevel(logging.DEBUG)
		logger.Debug("Debug message", zap.String("mode", "verbose"))
	})

	t.Run("Sync", func(t *testing.T) {
		// stderr sync errors are benign on some platforms
		_ = observability.SyncLoggers()
	})
}

func TestComponentLogger(t *testing.T) {
	saved := observability.ServerLogger
	savedCLI := observability.CLILogger
	t.Cleanup(func() {
		observability.ServerLogger = saved
		observability.CLILogger = savedCLI
	})

	observability.ServerLogger = nil
	observability.CLILogger = nil

	log := observability.Component("tracker")
	require.NotPanics(t, func() {
		log.Info("dropped without a logger", zap.String("domain", "claude.ai"))
	})

	observability.InitCLILogger("ratewatch-test", true)
	require.NotPanics(t, func() {
		log.Debug("routed to CLI logger")
		log.Warn("warn")
		log.Error("error")
	})

	require.NotPanics(t, func() {
		observability.Nop.Error("ignored")
	})
}

func TestEmbeddedCrucible(t *testing.T) {
	version := crucible.GetVersion()
	require.NotEmpty(t, version.Gofulmen)
	require.NotEmpty(t, version.Crucible)
	require.NotEmpty(t, crucible.GetVersionString())
}
