// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SessionManager issues, resolves and ends sessions. It holds no per-user
// state: everything lives in the SessionRepository and the caller's token.
type SessionManager struct {
	sessions SessionRepository
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	onPurge  func(n int64)
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithSessionTTL sets how long a new session stays valid.
func WithSessionTTL(ttl time.Duration) SessionManagerOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSessionTimeout sets the per-operation store timeout. Zero disables it.
func WithSessionTimeout(d time.Duration) SessionManagerOption {
	return func(m *SessionManager) { m.timeout = d }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPurgeHook registers fn to receive the count of every janitor purge
// that removed at least one session.
func WithPurgeHook(fn func(n int64)) SessionManagerOption {
	return func(m *SessionManager) { m.onPurge = fn }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(sessions SessionRepository, opts ...SessionManagerOption) (*SessionManager, error) {
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("session repository is required")
	}
	m := &SessionManager{
		sessions: sessions,
		ttl:      DefaultSessionTTL,
		timeout:  DefaultOperationTimeout,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the lifetime of new sessions.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Start binds a brand-new session to accountID and returns its handle and
// plaintext token. Any session bound to caller.Token is ended first, so a
// token never survives a login event.
func (m *SessionManager) Start(ctx context.Context, caller Caller, accountID int64, display DisplayFields) (_ *SessionHandle, _ string, err error) {
	ctx, span := tracer.Start(ctx, "auth.SessionStart",
		trace.WithAttributes(attribute.Int64("account.id", accountID)))
	defer finishSpan(span, &err)

	if caller.Token != "" {
		if err := m.delete(ctx, HashSessionToken(caller.Token)); err != nil {
			return nil, "", err
		}
	}

	token, hash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", err
	}

	session, err := NewSession(accountID, display, hash, caller.UserAgent, caller.IPAddress, m.now().UTC().Add(m.ttl))
	if err != nil {
		return nil, "", err
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.sessions.Create(opCtx, session); err != nil {
		return nil, "", storeUnavailable("create session", err)
	}

	m.logger.DebugContext(ctx, "session started",
		"account_id", accountID,
		"session_id", session.ID.String())
	return session.Handle(), token, nil
}

// Current resolves token to its session. It returns nil without error for
// an empty, unknown or expired token.
func (m *SessionManager) Current(ctx context.Context, token string) (*SessionHandle, error) {
	if token == "" {
		return nil, nil
	}
	hash := HashSessionToken(token)

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	session, err := m.sessions.GetByTokenHash(opCtx, hash)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeUnavailable("get session", err)
	}

	if session.IsExpiredAt(m.now()) {
		if err := m.delete(ctx, hash); err != nil {
			m.logger.WarnContext(ctx, "failed to remove expired session",
				"session_id", session.ID.String(),
				"error", err)
		}
		return nil, nil
	}
	return session.Handle(), nil
}

// End destroys the session bound to token. Ending an unknown or empty
// token succeeds.
func (m *SessionManager) End(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.delete(ctx, HashSessionToken(token))
}

// PurgeExpired removes every expired session and returns how many were removed.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	n, err := m.sessions.DeleteExpired(opCtx, m.now().UTC())
	if err != nil {
		return 0, storeUnavailable("purge expired sessions", err)
	}
	return n, nil
}

// RunJanitor calls PurgeExpired every interval until ctx is done.
func (m *SessionManager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.WarnContext(ctx, "session purge failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.InfoContext(ctx, "expired sessions purged", "count", n)
				if m.onPurge != nil {
					m.onPurge(n)
				}
			}
		}
	}
}

func (m *SessionManager) delete(ctx context.Context, hash string) error {
	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	err := m.sessions.DeleteByTokenHash(opCtx, hash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return storeUnavailable("delete session", err)
	}
	return nil
}

func (m *SessionManager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

func storeUnavailable(operation string, err error) error {
	return oops.Code("AUTH_STORE_UNAVAILABLE").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}
