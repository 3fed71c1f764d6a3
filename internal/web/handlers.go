// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/healthhub/healthhub/internal/auth"
)

const (
	redirectHome       = "/"
	msgForbidden       = "Request not allowed."
	msgTooManyRequests = "Too many requests. Please slow down."
	msgBadRequest      = "The request could not be read."
)

type errorBody struct {
	Error string `json:"error"`
}

type sessionView struct {
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func viewOf(h *auth.SessionHandle) sessionView {
	return sessionView{
		Username:    h.Username,
		FirstName:   h.FirstName,
		LastName:    h.LastName,
		DisplayName: h.FullName(),
		ExpiresAt:   h.ExpiresAt,
	}
}

type successBody struct {
	Redirect string       `json:"redirect"`
	Session  *sessionView `json:"session,omitempty"`
}

type registerFailure struct {
	Errors []string          `json:"errors"`
	Values map[string]string `json:"values"`
}

type signInRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"` //nolint:gosec // request field, never serialized back
}

type signInFailure struct {
	Error    string `json:"error"`
	Username string `json:"username"`
}

type sessionStatus struct {
	Authenticated bool   `json:"authenticated"`
	DisplayName   string `json:"display_name,omitempty"`
	Username      string `json:"username,omitempty"`
}

func (s *Server) caller(c echo.Context) auth.Caller {
	return auth.Caller{
		Token:     s.token(c),
		UserAgent: c.Request().UserAgent(),
		IPAddress: c.RealIP(),
	}
}

func (s *Server) token(c echo.Context) string {
	cookie, err := c.Cookie(s.cfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) setCookie(c echo.Context, token string, h *auth.SessionHandle) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  h.ExpiresAt,
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleRegister(c echo.Context) error {
	var in auth.RegistrationInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: msgBadRequest})
	}

	handle, token, err := s.registrar.Register(c.Request().Context(), s.caller(c), in)
	if err != nil {
		values := in.Normalize().Values()
		var verrs *auth.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			s.metrics.RecordAuth("register", "rejected")
			return c.JSON(http.StatusUnprocessableEntity, registerFailure{Errors: verrs.Messages, Values: values})
		case errors.Is(err, auth.ErrStoreUnavailable):
			s.metrics.RecordAuth("register", "unavailable")
			return c.JSON(http.StatusServiceUnavailable, registerFailure{Errors: []string{auth.MsgStoreUnavailable}, Values: values})
		default:
			s.metrics.RecordAuth("register", "failed")
			return c.JSON(http.StatusInternalServerError, registerFailure{Errors: []string{auth.MsgRegistrationFailed}, Values: values})
		}
	}

	s.metrics.RecordAuth("register", "success")
	s.setCookie(c, token, handle)
	view := viewOf(handle)
	return c.JSON(http.StatusOK, successBody{Redirect: redirectHome, Session: &view})
}

func (s *Server) handleSignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: msgBadRequest})
	}

	handle, token, err := s.auth.SignIn(c.Request().Context(), s.caller(c), req.Username, req.Password)
	if err != nil {
		failure := signInFailure{Error: auth.UserMessage(err), Username: req.Username}
		switch {
		case errors.Is(err, auth.ErrMissingCredentials):
			s.metrics.RecordAuth("signin", "missing_credentials")
			return c.JSON(http.StatusBadRequest, failure)
		case errors.Is(err, auth.ErrInvalidCredentials):
			s.metrics.RecordAuth("signin", "invalid_credentials")
			return c.JSON(http.StatusUnauthorized, failure)
		case errors.Is(err, auth.ErrStoreUnavailable):
			s.metrics.RecordAuth("signin", "unavailable")
			return c.JSON(http.StatusServiceUnavailable, failure)
		default:
			s.metrics.RecordAuth("signin", "failed")
			failure.Error = auth.MsgStoreUnavailable
			return c.JSON(http.StatusInternalServerError, failure)
		}
	}

	s.metrics.RecordAuth("signin", "success")
	s.setCookie(c, token, handle)
	view := viewOf(handle)
	return c.JSON(http.StatusOK, successBody{Redirect: redirectHome, Session: &view})
}

func (s *Server) handleSignOut(c echo.Context) error {
	caller := s.caller(c)
	s.clearCookie(c)
	if err := s.auth.SignOut(c.Request().Context(), caller); err != nil {
		s.metrics.RecordAuth("signout", "unavailable")
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: auth.MsgStoreUnavailable})
	}
	s.metrics.RecordAuth("signout", "success")
	return c.JSON(http.StatusOK, successBody{Redirect: redirectHome})
}

func (s *Server) handleSession(c echo.Context) error {
	h := auth.SessionFromContext(c.Request().Context())
	if h == nil {
		return c.JSON(http.StatusOK, sessionStatus{})
	}
	return c.JSON(http.StatusOK, sessionStatus{
		Authenticated: true,
		DisplayName:   h.FullName(),
		Username:      h.Username,
	})
}
