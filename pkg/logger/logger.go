// Package logger builds the process-wide zap logger and hands out
// component-scoped children of it, the same "named component logger"
// concept the server has always used, now backed by a structured encoder
// instead of hand-rolled ANSI formatting.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gameforge/pkg/config"
)

// New builds a zap logger per cfg. Format "json" gets JSON output; anything
// else gets human-readable console output. Level names are ANSI-colored in
// both encodings. Any extraCores
// (such as an adminlog.Buffer) receive every entry alongside stdout.
func New(cfg config.LoggingConfig, extraCores ...zapcore.Core) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	cores := append([]zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)}, extraCores...)
	return zap.New(zapcore.NewTee(cores...)), nil
}

// Named returns a child logger tagged with component, mirroring the
// server/client/game-scoped loggers of old: ServerLogger, ClientLogger and
// so on become logger.Named("server"), logger.Named("game").
func Named(base *zap.Logger, component string) *zap.SugaredLogger {
	return base.Named(component).Sugar()
}
