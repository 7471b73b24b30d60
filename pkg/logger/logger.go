package logger

import (
	"fmt"
	"os"

	"github.com/example/storefront/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. When file logging is enabled a JSON core
// writing through lumberjack is teed next to the configured outputs.
func New(cfg *config.LogConfig, name string) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = level
	if cfg.Encoding != "" {
		zapConfig.Encoding = cfg.Encoding
	}
	if cfg.Encoding == "console" {
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if len(cfg.OutputPaths) > 0 {
		zapConfig.OutputPaths = cfg.OutputPaths
	}

	log, err := zapConfig.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if cfg.File.Enabled {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotating),
			level,
		)
		log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	host, _ := os.Hostname()
	return log.Named(name).With(zap.String("host", host)), nil
}
