package observability

import (
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Logger is the logging surface pipeline components depend on.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Component returns a Logger tagged with the component name. The backing
// logger is resolved on every call so components built before serve
// initializes ServerLogger still end up in the structured stream.
func Component(name string) Logger {
	return componentLogger{name: name}
}

type componentLogger struct {
	name string
}

func (c componentLogger) target() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

func (c componentLogger) with(fields []zap.Field) []zap.Field {
	return append([]zap.Field{zap.String("component", c.name)}, fields...)
}

func (c componentLogger) Debug(msg string, fields ...zap.Field) {
	if l := c.target(); l != nil {
		l.Debug(msg, c.with(fields)...)
	}
}

func (c componentLogger) Info(msg string, fields ...zap.Field) {
	if l := c.target(); l != nil {
		l.Info(msg, c.with(fields)...)
	}
}

func (c componentLogger) Warn(msg string, fields ...zap.Field) {
	if l := c.target(); l != nil {
		l.Warn(msg, c.with(fields)...)
	}
}

func (c componentLogger) Error(msg string, fields ...zap.Field) {
	if l := c.target(); l != nil {
		l.Error(msg, c.with(fields)...)
	}
}

// Nop discards everything.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Debug(string, ...zap.Field) {}
func (nopLogger) Info(string, ...zap.Field)  {}
func (nopLogger) Warn(string, ...zap.Field)  {}
func (nopLogger) Error(string, ...zap.Field) {}
