// Package logtest provides loggers for tests that assert on log output.
package logtest

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/pulse-meter/internal/logging"
)

// NewObservedLogger returns a debug-level logger whose entries are kept in
// memory for test assertions.
func NewObservedLogger() (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}
