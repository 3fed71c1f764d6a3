// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/healthhub/healthhub/internal/auth"
)

// SessionRepository implements auth.SessionRepository on SQLite.
type SessionRepository struct {
	db *sql.DB
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO sessions (id, account_id, token_hash, username, first_name, last_name, user_agent, ip_address, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID.String(), s.AccountID, s.TokenHash, s.Username, s.FirstName, s.LastName,
		s.UserAgent, s.IPAddress, toUnix(s.ExpiresAt), toUnix(s.CreatedAt))
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("account_id", s.AccountID).
			Wrap(mapWriteError(err))
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	var (
		s                    auth.Session
		id                   string
		expiresAt, createdAt int64
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, account_id, token_hash, username, first_name, last_name, user_agent, ip_address, expires_at, created_at
		FROM sessions WHERE token_hash = ?
	`, tokenHash).Scan(&id, &s.AccountID, &s.TokenHash, &s.Username, &s.FirstName, &s.LastName,
		&s.UserAgent, &s.IPAddress, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}
	if s.ID, err = ulid.Parse(id); err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("id", id).Wrap(err)
	}
	s.ExpiresAt = fromUnix(expiresAt)
	s.CreatedAt = fromUnix(createdAt)
	return &s, nil
}

// DeleteByTokenHash removes a session by its token hash.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes all sessions expired at now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toUnix(now))
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return n, nil
}
