// Package logging builds the zap logger of the plugin. Plugin output goes to
// stdout, so diagnostics are written to stderr and, optionally, to a rotated
// JSON log file.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level string // debug, info, warn, error
	File  string // optional rotated log file
	// Stderr overrides the console sink, mainly for tests.
	Stderr io.Writer
}

// New creates the logger. The returned function flushes it.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zapcore.ErrorLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var stderr io.Writer = os.Stderr
	if opts.Stderr != nil {
		stderr = opts.Stderr
	}
	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(stderr), level),
	}

	if opts.File != "" {
		config := zap.NewProductionEncoderConfig()
		config.CallerKey = "source"
		config.TimeKey = "timestamp"
		config.EncodeTime = zapcore.ISO8601TimeEncoder
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
		// the file keeps info even when the console only shows errors
		fileLevel := zapcore.InfoLevel
		if level < fileLevel {
			fileLevel = level
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(config), fileWriter, fileLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, func() { _ = logger.Sync() }, nil
}
