// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/healthhub/healthhub/internal/auth"
	"github.com/healthhub/healthhub/pkg/errutil"
)

func (s *Server) logRequests() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURIPath:   true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []any{
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
				"client_ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, errutil.Attrs(v.Error)...)
			}
			s.logger.Log(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
}

func (s *Server) recordMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.metrics == nil {
			return next(c)
		}
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		return err
	}
}

// checkOrigin rejects unsafe requests whose Origin header matches none of
// the allowed patterns. Requests without an Origin header pass.
func (s *Server) checkOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		switch c.Request().Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return next(c)
		}
		origin := c.Request().Header.Get(echo.HeaderOrigin)
		if len(s.origins) == 0 || origin == "" {
			return next(c)
		}
		for _, g := range s.origins {
			if g.Match(origin) {
				return next(c)
			}
		}
		s.logger.WarnContext(c.Request().Context(), "origin rejected",
			"origin", origin,
			"path", c.Request().URL.Path)
		return c.JSON(http.StatusForbidden, errorBody{Error: msgForbidden})
	}
}

// loadSession resolves the session cookie and stores the handle in the
// request context. Store failures leave the request anonymous.
func (s *Server) loadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := s.token(c)
		if token == "" {
			return next(c)
		}

		req := c.Request()
		handle, err := s.auth.Current(req.Context(), token)
		if err != nil {
			errutil.LogErrorContext(req.Context(), s.logger, "session lookup failed", err)
			return next(c)
		}
		if handle == nil {
			s.clearCookie(c)
			return next(c)
		}
		c.SetRequest(req.WithContext(auth.WithSession(req.Context(), handle)))
		return next(c)
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := auth.MsgStoreUnavailable
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = http.StatusText(code)
	} else {
		errutil.LogErrorContext(c.Request().Context(), s.logger, "unhandled request error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorBody{Error: msg})
	}
	if err != nil {
		s.logger.WarnContext(c.Request().Context(), "failed to write error response", "error", err)
	}
}
