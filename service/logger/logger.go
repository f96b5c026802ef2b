package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Service = fx.Options(
		fx.Provide(New),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)
)

const ProductionEnv = "production"

type Params struct {
	fx.In

	Env       string       `name:"environment"`
	Level     string       `name:"logLevel" optional:"true"`
	Lifecycle fx.Lifecycle `optional:"true"`
}

// New builds a JSON logger for production and a colored console logger elsewhere.
func New(p Params) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if p.Level != "" {
		if err := level.UnmarshalText([]byte(p.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", p.Level, err)
		}
	}

	var cfg zap.Config
	if p.Env == ProductionEnv {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return Sync(logger)
			},
		})
	}

	return logger.With(zap.String("env", p.Env)), nil
}

// Sync flushes the logger, ignoring the stdout/stderr sync error
// https://github.com/uber-go/zap/issues/880
func Sync(logger *zap.Logger) error {
	if err := logger.Sync(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return err
		}
	}
	return nil
}
