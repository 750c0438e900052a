// AngelaMos | 2026
// server.go

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/flightscheduly/backend/internal/config"
	"github.com/flightscheduly/backend/internal/health"
	"github.com/flightscheduly/backend/internal/middleware"
)

type Config struct {
	ServerConfig  config.ServerConfig
	HealthHandler *health.Handler
	Logger        *slog.Logger
	ServiceName   string
}

type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	health     *health.Handler
	logger     *slog.Logger
}

func New(cfg Config) *Server {
	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	trusted, _ := cfg.ServerConfig.TrustedProxyPrefixes() //nolint:errcheck // validated at load
	router.Use(middleware.RealIP(trusted))

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "http"
	}

	handler := otelhttp.NewHandler(router, serviceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	return &Server{
		httpServer: &http.Server{
			Addr: net.JoinHostPort(
				cfg.ServerConfig.Host,
				strconv.Itoa(cfg.ServerConfig.Port),
			),
			Handler:           handler,
			ReadTimeout:       cfg.ServerConfig.ReadTimeout,
			ReadHeaderTimeout: cfg.ServerConfig.ReadTimeout,
			WriteTimeout:      cfg.ServerConfig.WriteTimeout,
			IdleTimeout:       cfg.ServerConfig.IdleTimeout,
		},
		router: router,
		health: cfg.HealthHandler,
		logger: logger,
	}
}

func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown fails readiness first, waits drainDelay for load balancers to
// notice, then stops accepting and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context, drainDelay time.Duration) error {
	if s.health != nil {
		s.health.SetShutdown(true)
	}

	select {
	case <-time.After(drainDelay):
	case <-ctx.Done():
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}
