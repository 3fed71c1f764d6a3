// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service provides sign-in and sign-out.
type Service struct {
	store    *CredentialStore
	sessions *SessionManager
	logger   *slog.Logger
}

// NewAuthService creates a new Service.
func NewAuthService(store *CredentialStore, sessions *SessionManager, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("session manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, sessions: sessions, logger: logger}, nil
}

// SignIn verifies username and password and starts a brand-new session,
// ending whatever session caller.Token referred to.
//
// An unknown username and a wrong password both return ErrInvalidCredentials
// and take about the same time.
func (s *Service) SignIn(ctx context.Context, caller Caller, username, password string) (_ *SessionHandle, _ string, err error) {
	ctx, span := tracer.Start(ctx, "auth.SignIn")
	defer finishSpan(span, &err)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", oops.Code("AUTH_MISSING_CREDENTIALS").Wrap(ErrMissingCredentials)
	}
	span.SetAttributes(attribute.String("account.username", username))

	account, err := s.store.VerifyCredential(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	if account == nil {
		s.logger.InfoContext(ctx, "sign-in rejected", "username", username, "ip", caller.IPAddress)
		return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}
	span.SetAttributes(attribute.Int64("account.id", account.ID))

	display := DisplayFields{Username: account.Username}
	profile, err := s.store.FindProfile(ctx, account.ID)
	if err != nil {
		return nil, "", err
	}
	if profile != nil {
		display.FirstName = profile.FirstName
		display.LastName = profile.LastName
	} else {
		s.logger.WarnContext(ctx, "account has no profile", "account_id", account.ID)
	}

	handle, token, err := s.sessions.Start(ctx, caller, account.ID, display)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "signed in", "account_id", account.ID)
	return handle, token, nil
}

// SignOut ends the caller's session. Signing out without a session succeeds.
func (s *Service) SignOut(ctx context.Context, caller Caller) (err error) {
	ctx, span := tracer.Start(ctx, "auth.SignOut",
		trace.WithAttributes(attribute.Bool("session.present", caller.Token != "")))
	defer finishSpan(span, &err)

	return s.sessions.End(ctx, caller.Token)
}

// Current returns the session behind token, or nil when there is none.
func (s *Service) Current(ctx context.Context, token string) (*SessionHandle, error) {
	return s.sessions.Current(ctx, token)
}
