package cmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// newLogger builds the process logger. Logs go to stderr so command output
// on stdout stays machine readable.
func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var encoder zapcore.Encoder
	switch resolveLogFormat(format, term.IsTerminal(int(os.Stderr.Fd()))) {
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller()), nil
}

// resolveLogFormat picks console output for terminals and JSON otherwise
// when format is "auto".
func resolveLogFormat(format string, tty bool) string {
	if format != "auto" {
		return format
	}
	if tty {
		return "console"
	}
	return "json"
}
