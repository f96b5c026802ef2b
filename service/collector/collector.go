package collector

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallhouse123/go-analytics/service/analytics"
	"github.com/smallhouse123/go-analytics/service/config"
	"github.com/smallhouse123/go-analytics/service/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	Service = fx.Provide(New)
)

const (
	AddressKey       = "HTTP_ADDRESS"
	GinModeKey       = "GIN_MODE"
	AllowedOriginKey = "HTTP_ALLOWED_ORIGIN"

	DefaultAddress = ":8080"

	// TabHeader carries the browser tab id used to scope the session.
	TabHeader       = "X-Analytics-Tab"
	RequestIDHeader = "X-Request-ID"

	maxBatchSize = 1000
	maxBodyBytes = 1 << 20
)

type Params struct {
	fx.In

	Analytics analytics.Analytics
	Config    config.Config
	Logger    *zap.Logger
	Session   session.Session     `optional:"true"`
	Gatherer  prometheus.Gatherer `optional:"true"`
	Lifecycle fx.Lifecycle        `optional:"true"`
}

// Server relays browser events into the analytics client.
type Server struct {
	engine        *gin.Engine
	httpServer    *http.Server
	analytics     analytics.Analytics
	session       session.Session
	gatherer      prometheus.Gatherer
	allowedOrigin string
	logger        *zap.Logger
}

func New(p Params) *Server {
	gin.SetMode(config.GetString(p.Config, GinModeKey, gin.ReleaseMode))

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		engine:        gin.New(),
		analytics:     p.Analytics,
		session:       p.Session,
		gatherer:      gatherer,
		allowedOrigin: config.GetString(p.Config, AllowedOriginKey, "*"),
		logger:        p.Logger.Named("collector"),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.GetString(p.Config, AddressKey, DefaultAddress),
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStart: s.Start,
			OnStop:  s.Shutdown,
		})
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestIDMiddleware())
	s.engine.Use(s.zapLoggerMiddleware())
	s.engine.Use(s.corsMiddleware())
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/api/v1")
	{
		v1.POST("/events", s.handleEvent)
		v1.POST("/events/batch", s.handleBatchEvents)
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr is the listen address, resolved once Start has bound it.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.httpServer.Addr)
	}
	s.httpServer.Addr = ln.Addr().String()

	s.logger.Info("starting HTTP server",
		zap.String("addr", s.httpServer.Addr),
		zap.String("mode", gin.Mode()),
	)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "failed to shutdown server")
	}
	return nil
}
