package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tart/internal/api/middleware"
	"github.com/GriffinCanCode/tart/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tart/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tart/internal/types"
)

// ShutdownTimeout bounds graceful shutdown in Run
const ShutdownTimeout = 5 * time.Second

// SessionSource is the read side of the session directory
type SessionSource interface {
	Sessions() []types.Session
	Lookup(id string) (types.Session, bool)
}

// Options configures the diagnostics server
type Options struct {
	Addr     string
	Sessions SessionSource
	Metrics  *monitoring.Metrics
	// Gatherer serves /metrics. Defaults to the default Prometheus gatherer.
	Gatherer prometheus.Gatherer
	Breaker  *resilience.Breaker
	// RateLimit is applied per client IP; nil disables limiting
	RateLimit *middleware.RateLimitConfig
	Logger    *zap.Logger
	// Development keeps gin in debug mode
	Development bool
}

// Server is the local diagnostics HTTP server
type Server struct {
	router  *gin.Engine
	http    *http.Server
	logger  *zap.Logger
	handler *handlers
}

// New creates a diagnostics server. Nothing listens until Run.
func New(opts Options) *Server {
	logger := logging.OrNop(opts.Logger).Named("diagnostics")

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(opts.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if opts.RateLimit != nil {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", opts.RateLimit.RequestsPerSecond),
			zap.Int("burst", opts.RateLimit.Burst))
		router.Use(middleware.RateLimit(*opts.RateLimit))
	}

	h := &handlers{
		sessions: opts.Sessions,
		metrics:  opts.Metrics,
		breaker:  opts.Breaker,
		started:  time.Now(),
	}

	router.GET("/", h.root)
	router.GET("/health", h.health)
	router.GET("/sessions", h.listSessions)
	router.GET("/sessions/:id", h.getSession)
	router.GET("/stats", h.stats)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &Server{
		router:  router,
		logger:  logger,
		handler: h,
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting diagnostics server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("diagnostics server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down diagnostics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down diagnostics server: %w", err)
	}
	return nil
}
