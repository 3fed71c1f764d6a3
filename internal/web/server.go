// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

// Package web exposes registration, sign-in and sessions over HTTP.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"
	"golang.org/x/time/rate"

	"github.com/healthhub/healthhub/internal/auth"
	"github.com/healthhub/healthhub/internal/observability"
)

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, caller auth.Caller, in auth.RegistrationInput) (*auth.SessionHandle, string, error)
}

// Authenticator signs callers in and out and resolves their sessions.
type Authenticator interface {
	SignIn(ctx context.Context, caller auth.Caller, username, password string) (*auth.SessionHandle, string, error)
	SignOut(ctx context.Context, caller auth.Caller) error
	Current(ctx context.Context, token string) (*auth.SessionHandle, error)
}

// Config holds the HTTP-facing settings.
type Config struct {
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration

	// AllowedOrigins are glob patterns. Empty disables the origin check.
	AllowedOrigins []string

	// RateLimit is requests per second per client IP on the auth
	// endpoints. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Server is the public HTTP API.
type Server struct {
	echo      *echo.Echo
	cfg       Config
	registrar Registrar
	auth      Authenticator
	metrics   *observability.Metrics
	logger    *slog.Logger
	origins   []glob.Glob
	server    *http.Server
}

// NewServer builds the router. metrics may be nil.
func NewServer(cfg Config, registrar Registrar, authn Authenticator, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if registrar == nil {
		return nil, oops.Code("WEB_INVALID_DEPENDENCY").Errorf("registrar is required")
	}
	if authn == nil {
		return nil, oops.Code("WEB_INVALID_DEPENDENCY").Errorf("authenticator is required")
	}
	if cfg.CookieName == "" {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("cookie name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	origins := make([]glob.Glob, 0, len(cfg.AllowedOrigins))
	for _, pattern := range cfg.AllowedOrigins {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code("WEB_INVALID_CONFIG").With("pattern", pattern).Wrap(err)
		}
		origins = append(origins, g)
	}

	s := &Server{
		echo:      echo.New(),
		cfg:       cfg,
		registrar: registrar,
		auth:      authn,
		metrics:   metrics,
		logger:    logger,
		origins:   origins,
	}
	s.server = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(s.logRequests())
	e.Use(middleware.Recover())
	e.Use(s.recordMetrics)
	e.Use(s.checkOrigin)
	e.Use(s.loadSession)

	api := e.Group("/api/v1")
	limited := s.rateLimiter()
	api.POST("/register", s.handleRegister, limited)
	api.POST("/signin", s.handleSignIn, limited)
	api.POST("/signout", s.handleSignOut)
	api.GET("/session", s.handleSession)
}

// Handler returns the router for use with httptest or a custom server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("http server started", "addr", l.Addr().String())
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) rateLimiter() echo.MiddlewareFunc {
	if s.cfg.RateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.cfg.RateLimit),
		Burst:     s.cfg.RateBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return c.JSON(http.StatusForbidden, errorBody{Error: msgForbidden})
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			s.logger.WarnContext(c.Request().Context(), "rate limit exceeded",
				"client_ip", identifier,
				"path", c.Path())
			return c.JSON(http.StatusTooManyRequests, errorBody{Error: msgTooManyRequests})
		},
	})
}
