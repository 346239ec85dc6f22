// Package logging builds the service logger: an ectologger front end the
// rest of the code logs through, backed by zap for output.
package logging

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the service logger. Pretty logs use zap's development
// encoder for local work; production output is JSON.
func New(appName string, level string, pretty bool) (ectologger.Logger, func(), error) {
	zapConfig := zap.NewProductionConfig()
	if pretty {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(level))

	zl, err := zapConfig.Build(zap.Fields(zap.String("app", appName)))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = zl.Sync()
	}

	return zapadapter.NewZapEctoLogger(zl, nil), cleanup, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
