// Package logging builds the zap loggers used by the commands.
package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewConfig returns a console zap config at the given level. Stacktraces are
// disabled, levels are coloured and timestamps are ISO8601.
//
// Arguments:
//   - level: One of debug, info, warn, error. Empty means info.
//   - development: Enables development mode (caller info, DPanic panics).
//
// Returns:
//   - zap.Config: The config.
//   - error: When level does not name a zap level.
func NewConfig(level string, development bool) (zap.Config, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return zap.Config{}, errors.Wrapf(err, "log level %q", level)
		}
	}

	return zap.Config{
		Level:       zap.NewAtomicLevelAt(lvl),
		Development: development,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}, nil
}

// New builds a logger from NewConfig.
func New(level string, development bool) (*zap.Logger, error) {
	cfg, err := NewConfig(level, development)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger, nil
}
