package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jonwraymond/fixturefeed/auth"
	"github.com/jonwraymond/fixturefeed/health"
	"github.com/jonwraymond/fixturefeed/observe"
	"github.com/jonwraymond/fixturefeed/resilience"
	"github.com/jonwraymond/fixturefeed/service"
)

// DefaultShutdownTimeout bounds graceful shutdown in Serve.
const DefaultShutdownTimeout = 10 * time.Second

// Options configures a Server. Service is required.
type Options struct {
	Service *service.Service

	// Health backs /readyz and /health. Nil means an empty aggregator.
	Health *health.Aggregator

	// Admin authenticates cache administration. Nil disables those routes.
	Admin auth.Authenticator

	// Breaker, when set, is reported in /v1/stats.
	Breaker *resilience.CircuitBreaker

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	Logger  observe.Logger
	Version string
	Now     func() time.Time
}

// Server is the HTTP front end.
type Server struct {
	echo    *echo.Echo
	svc     *service.Service
	admin   auth.Authenticator
	breaker *resilience.CircuitBreaker
	logger  observe.Logger
	version string
	now     func() time.Time
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("api: service is required")
	}
	if opts.Health == nil {
		opts.Health = health.NewAggregator(0)
	}
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		echo:    echo.New(),
		svc:     opts.Service,
		admin:   opts.Admin,
		breaker: opts.Breaker,
		logger:  opts.Logger.With(observe.Field{Key: "component", Value: "api"}),
		version: opts.Version,
		now:     opts.Now,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Recover())
	e.Use(s.accessLog)

	e.GET("/healthz", echo.WrapHandler(health.LivenessHandler()))
	e.GET("/readyz", echo.WrapHandler(health.ReadinessHandler(opts.Health)))
	e.GET("/health", echo.WrapHandler(health.DetailedHandler(opts.Health)))
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	v1 := e.Group("/v1")
	v1.GET("/matches", s.getMatches)
	v1.GET("/teams/:team", s.getTeamForm)
	v1.GET("/compare", s.getCompare)
	v1.GET("/suggest", s.getSuggest)
	v1.GET("/stats", s.getStats)
	v1.GET("/version", s.getVersion)

	adminGroup := v1.Group("/cache", s.requireRole(auth.RoleAdmin))
	adminGroup.GET("/keys", s.listKeys)
	adminGroup.DELETE("", s.clearCache)
	adminGroup.DELETE("/:key", s.invalidateKey)

	return s, nil
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", observe.Field{Key: "address", Value: addr})
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	s.logger.Info(shutdownCtx, "http server shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
