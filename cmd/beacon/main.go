package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/smallhouse123/go-analytics/service/analytics"
	"github.com/smallhouse123/go-analytics/service/collector"
	"github.com/smallhouse123/go-analytics/service/config"
	"github.com/smallhouse123/go-analytics/service/logger"
	"github.com/smallhouse123/go-analytics/service/metrics"
	"github.com/smallhouse123/go-analytics/service/redis/redissession"
	"github.com/smallhouse123/go-analytics/service/session"
	"github.com/smallhouse123/go-analytics/service/sink"
	"go.uber.org/fx"
)

type settings struct {
	env           string
	configMapPath string
	vaultPath     string
	logLevel      string
	serviceName   string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseSettings(args []string) (settings, error) {
	var s settings
	fs := flag.NewFlagSet("beacon", flag.ContinueOnError)
	fs.StringVar(&s.env, "env", envOr("APP_ENV", "development"), "environment section of the config files")
	fs.StringVar(&s.configMapPath, "config", envOr("CONFIG_MAP_PATH", "./config"), "config map directory")
	fs.StringVar(&s.vaultPath, "vault", os.Getenv("VAULT_PATH"), "secrets directory merged over the config map")
	fs.StringVar(&s.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "zap log level")
	fs.StringVar(&s.serviceName, "service", envOr("SERVICE_NAME", "beacon"), "metrics namespace")
	err := fs.Parse(args)
	return s, err
}

func options(s settings) fx.Option {
	return fx.Options(
		fx.Supply(
			fx.Annotated{Name: "environment", Target: s.env},
			fx.Annotated{Name: "configMapPath", Target: s.configMapPath},
			fx.Annotated{Name: "vaultPath", Target: s.vaultPath},
			fx.Annotated{Name: "logLevel", Target: s.logLevel},
			fx.Annotated{Name: "serviceName", Target: s.serviceName},
		),
		logger.Service,
		services(),
	)
}

func services() fx.Option {
	return fx.Options(
		config.Service,
		metrics.Service,
		redissession.Service,
		session.Service,
		sink.Service,
		analytics.Service,
		collector.Service,
		fx.Invoke(func(*collector.Server) {}),
	)
}

func main() {
	// a missing .env is fine outside local development
	_ = godotenv.Load()

	s, err := parseSettings(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	fx.New(options(s)).Run()
}
