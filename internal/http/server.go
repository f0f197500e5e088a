// Package http provides the HTTP API for ragd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
)

// Searcher answers search requests.
type Searcher interface {
	Search(ctx context.Context, q rag.Query) (*rag.Response, error)
}

// HealthChecker reports service health.
type HealthChecker interface {
	Health(ctx context.Context) (*rag.HealthStatus, error)
}

// Server provides HTTP endpoints for ragd.
type Server struct {
	echo     *echo.Echo
	searcher Searcher
	health   HealthChecker
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MeterProvider receives request metrics. Nil uses the global provider.
	MeterProvider metric.MeterProvider
}

// NewServer creates a new HTTP server. The searcher is usually a
// *rag.Service, which also serves as the health checker.
func NewServer(searcher Searcher, health HealthChecker, logger *logging.Logger, cfg *Config) (*Server, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if health == nil {
		return nil, fmt.Errorf("health checker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8001,
		}
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()

	s := &Server{
		echo:     e,
		searcher: searcher,
		health:   health,
		logger:   logger,
		config:   cfg,
	}
	e.HTTPErrorHandler = s.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(newRequestMetrics(cfg.MeterProvider, logger.Underlying()).middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				// Render now so the logged status is the one sent.
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/search", s.handleSearch)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// handleHealth reports liveness. It does not contact the embedding provider or
// the store.
func (s *Server) handleHealth(c echo.Context) error {
	status, err := s.health.Health(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Service unhealthy: "+err.Error())
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: status.Status, Message: status.Message})
}

// handleSearch embeds the query and returns the nearest chunks.
func (s *Server) handleSearch(c echo.Context) error {
	ctx := c.Request().Context()

	// A body without Content-Type is read as JSON.
	if c.Request().Header.Get(echo.HeaderContentType) == "" {
		c.Request().Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, bindErrorDetail(err))
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, validationDetail(err))
	}

	resp, err := s.searcher.Search(ctx, req.toQuery())
	if errors.Is(err, rag.ErrInvalidQuery) || errors.Is(err, rag.ErrInvalidFilter) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		s.logger.Error(ctx, "search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Search failed: "+err.Error())
	}

	return c.JSON(http.StatusOK, SearchResponse{Results: resp.Results, Query: resp.Query})
}

// handleError renders every error as {"detail": ...}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	detail := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Internal != nil && code >= http.StatusInternalServerError {
			s.logger.Error(c.Request().Context(), "internal error", zap.Error(he.Internal))
		}
		detail = fmt.Sprint(he.Message)
	} else {
		s.logger.Error(c.Request().Context(), "unhandled error", zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Detail: detail})
	}
	if err != nil {
		s.logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(err))
	}
}

// Handler returns the routed handler, for mounting under httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
