// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32             // 32 bytes = 64 hex chars
	DefaultSessionTTL = 24 * time.Hour // overridden by session.ttl
)

// DisplayFields are the account attributes cached in a session so requests
// do not need to hit the credential store to greet the user.
type DisplayFields struct {
	Username  string
	FirstName string
	LastName  string
}

// Session is the server-side record behind a session token.
// Only the SHA-256 hash of the token is kept.
type Session struct {
	ID        ulid.ULID
	AccountID int64
	TokenHash string
	Username  string
	FirstName string
	LastName  string
	UserAgent string
	IPAddress string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewSession creates a validated Session instance.
// UserAgent and IPAddress are optional and may be empty.
func NewSession(accountID int64, display DisplayFields, tokenHash, userAgent, ipAddress string, expiresAt time.Time) (*Session, error) {
	if accountID <= 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").
			With("account_id", accountID).
			Errorf("account ID must be positive")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &Session{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: tokenHash,
		Username:  display.Username,
		FirstName: display.FirstName,
		LastName:  display.LastName,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Handle returns the read-only view of the session.
func (s *Session) Handle() *SessionHandle {
	return &SessionHandle{
		AccountID: s.AccountID,
		Username:  s.Username,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		ExpiresAt: s.ExpiresAt,
	}
}

// SessionHandle is what the presentation layer sees of an authenticated
// session. It never carries the token.
type SessionHandle struct {
	AccountID int64
	Username  string
	FirstName string
	LastName  string
	ExpiresAt time.Time
}

// FullName returns "First Last", falling back to the username when the
// account has no profile names.
func (h *SessionHandle) FullName() string {
	name := strings.TrimSpace(h.FirstName + " " + h.LastName)
	if name == "" {
		return h.Username
	}
	return name
}

// GreetingName returns the first name, or the username when there is none.
func (h *SessionHandle) GreetingName() string {
	if h.FirstName == "" {
		return h.Username
	}
	return h.FirstName
}

// Caller is the explicit per-request session context: the token the client
// presented (empty when anonymous) and request metadata stored with new
// sessions.
type Caller struct {
	Token     string
	UserAgent string
	IPAddress string
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifySessionToken checks if the plaintext token matches the stored hash
// in constant time.
func VerifySessionToken(token, hash string) (bool, error) {
	if token == "" {
		return false, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}
	if hash == "" {
		return false, oops.Code("SESSION_HASH_EMPTY").Errorf("stored hash cannot be empty")
	}
	computed := HashSessionToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	// Returns ErrNotFound if there is none.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// DeleteByTokenHash removes the session with the given token hash.
	// Returns ErrNotFound if there is none.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteExpired removes all sessions expired at now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionContextKey struct{}

// WithSession returns a copy of ctx carrying the caller's session handle.
func WithSession(ctx context.Context, h *SessionHandle) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, h)
}

// SessionFromContext returns the handle stored by WithSession, or nil for an
// anonymous request.
func SessionFromContext(ctx context.Context) *SessionHandle {
	h, _ := ctx.Value(sessionContextKey{}).(*SessionHandle)
	return h
}
