// Package logging builds the zap loggers used by the pulse-meter daemon.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logger type passed around the daemon.
type Logger = *zap.SugaredLogger

// NewConfig returns the console config used by the daemon: no stacktraces,
// ISO8601 timestamps, short callers.
func NewConfig(debug bool) zap.Config {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named logger writing to stdout.
func NewLogger(name string, debug bool) (Logger, error) {
	l, err := NewConfig(debug).Build()
	if err != nil {
		return nil, err
	}
	return l.Named(name).Sugar(), nil
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return zap.NewNop().Sugar()
}
