package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	fulerrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/client"
)

// ExitCodeFor maps a non-nil command error onto a foundry exit code.
func ExitCodeFor(err error) foundry.ExitCode {
	var envelope *fulerrors.ErrorEnvelope
	if errors.As(err, &envelope) {
		switch envelope.Code {
		case "CONFIG_INVALID":
			return foundry.ExitConfigInvalid
		case "SERVICE_UNAVAILABLE", "EXTERNAL_SERVICE_ERROR", "TIMEOUT":
			return foundry.ExitExternalServiceUnavailable
		}
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
		return foundry.ExitExternalServiceUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return foundry.ExitExternalServiceUnavailable
	}

	if errors.Is(err, fs.ErrNotExist) {
		return foundry.ExitFileNotFound
	}
	return foundry.ExitFailure
}

// Exit terminates the process with the exit code ExitCodeFor picks for err.
func Exit(err error) {
	ExitWithCodeStderr(ExitCodeFor(err), "Command failed", err)
}

func envelopeFields(err error) ([]zap.Field, error) {
	var envelope *fulerrors.ErrorEnvelope
	if !errors.As(err, &envelope) {
		return nil, err
	}
	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.String("error_message", envelope.Message),
		zap.String("correlation_id", envelope.CorrelationID),
		zap.String("trace_id", envelope.TraceID),
	}
	if envelope.Context != nil {
		fields = append(fields, zap.Any("error_context", envelope.Context))
	}
	if original, ok := envelope.Original.(error); ok && original != nil {
		err = original
	}
	return fields, err
}

// ExitWithCode logs err with the exit code metadata and exits. A nil
// logger falls back to stderr.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	extra, cause := envelopeFields(err)
	fields = append(fields, extra...)
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	logger.Error(msg, fields...)
	os.Exit(info.Code)
}

// ExitWithCodeStderr writes the failure to stderr and exits. Used before
// the logger exists and from main.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	var envelope *fulerrors.ErrorEnvelope
	switch {
	case err == nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	case errors.As(err, &envelope):
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %s\n", msg, envelope.Code, envelope.Message)
		if original, ok := envelope.Original.(error); ok && original != nil {
			fmt.Fprintf(os.Stderr, "Underlying error: %v\n", original)
		}
	default:
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}
