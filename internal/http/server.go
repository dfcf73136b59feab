// Package http serves the operator API: fragment intake, signal review and
// document generation.
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
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

// Classifier turns fragments into stored items.
type Classifier interface {
	Classify(ctx context.Context, sessionID string, fragments []signal.RawFragment) ([]signal.ClassifiedItem, error)
}

// Synthesizer generates and edits document sections.
type Synthesizer interface {
	Run(ctx context.Context, sessionID string) (string, error)
	Regenerate(ctx context.Context, sessionID, sectionName string) (signal.SectionVersion, error)
	EditSection(ctx context.Context, sessionID, snapshotID, sectionName, content string) (signal.SectionVersion, error)
}

// Validator raises validation flags for a session.
type Validator interface {
	Validate(ctx context.Context, sessionID string) ([]signal.ValidationFlag, error)
}

// Store is the read side of the signal store plus restore.
type Store interface {
	Item(ctx context.Context, itemID string) (signal.ClassifiedItem, error)
	QueryActive(ctx context.Context, sessionID string) ([]signal.ClassifiedItem, error)
	QuerySuppressed(ctx context.Context, sessionID string) ([]signal.ClassifiedItem, error)
	Restore(ctx context.Context, itemID string) error
	LatestSectionVersions(ctx context.Context, sessionID string) (map[string]signal.SectionVersion, error)
	ListFlags(ctx context.Context, sessionID string) ([]signal.ValidationFlag, error)
}

// Deps are the services behind the API.
type Deps struct {
	Store       Store
	Classifier  Classifier
	Synthesizer Synthesizer
	Validator   Validator
}

func (d Deps) validate() error {
	switch {
	case d.Store == nil:
		return errors.New("store cannot be nil")
	case d.Classifier == nil:
		return errors.New("classifier cannot be nil")
	case d.Synthesizer == nil:
		return errors.New("synthesizer cannot be nil")
	case d.Validator == nil:
		return errors.New("validator cannot be nil")
	}
	return nil
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the brdforge HTTP API.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config *Config
}

// NewServer creates a server with every route registered.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9191}
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			// Handlers log through the request-scoped logger in ctx.
			reqLogger := logger.With(zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithLogger(req.Context(), reqLogger)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			reqLogger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{echo: e, deps: deps, logger: logger, config: cfg}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleCreateSession)

	session := v1.Group("/sessions/:session")
	session.POST("/fragments", s.handleFragments)
	session.GET("/items", s.handleItems)
	session.POST("/items/:id/restore", s.handleRestore)
	session.POST("/brd/generate", s.handleGenerate)
	session.GET("/brd", s.handleDocument)
	session.POST("/brd/validate", s.handleValidate)
	session.PUT("/brd/sections/:section", s.handleEditSection)
	session.POST("/brd/sections/:section/regenerate", s.handleRegenerate)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
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
