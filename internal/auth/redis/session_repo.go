// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

// Package redis stores sessions in Redis. Keys expire with the session, so
// the janitor has nothing to purge here.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/healthhub/healthhub/internal/auth"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "healthhub:session:"

// Options configure the client returned by Connect.
type Options struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries uint64
}

// Connect creates a client and pings it with exponential backoff.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	backoff := retry.WithMaxRetries(opts.MaxRetries, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

// record is the stored form of a session.
type record struct {
	ID        string    `json:"id"`
	AccountID int64     `json:"account_id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRepository implements auth.SessionRepository on Redis.
// Account existence is not checked; the session store is separate from the
// account database.
type SessionRepository struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// Option configures a SessionRepository.
type Option func(*SessionRepository)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(r *SessionRepository) { r.prefix = prefix }
}

// WithClock sets the clock used to compute key TTLs.
func WithClock(now func() time.Time) Option {
	return func(r *SessionRepository) { r.now = now }
}

// NewSessionRepository creates a SessionRepository over client.
func NewSessionRepository(client redis.Cmdable, opts ...Option) *SessionRepository {
	r := &SessionRepository{client: client, prefix: DefaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SessionRepository) key(tokenHash string) string {
	return r.prefix + tokenHash
}

// Create stores the session with a TTL matching its expiry. A session that
// is already expired is not written.
func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(record{
		ID:        s.ID.String(),
		AccountID: s.AccountID,
		Username:  s.Username,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		UserAgent: s.UserAgent,
		IPAddress: s.IPAddress,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "encode session").Wrap(err)
	}

	ok, err := r.client.SetNX(ctx, r.key(s.TokenHash), data, ttl).Result()
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "set session").
			With("account_id", s.AccountID).
			Wrap(err)
	}
	if !ok {
		return oops.Code("SESSION_CREATE_FAILED").Wrap(&auth.DuplicateKeyError{})
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	data, err := r.client.Get(ctx, r.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("operation", "get session").Wrap(err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("operation", "decode session").Wrap(err)
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("id", rec.ID).Wrap(err)
	}
	return &auth.Session{
		ID:        id,
		AccountID: rec.AccountID,
		TokenHash: tokenHash,
		Username:  rec.Username,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		UserAgent: rec.UserAgent,
		IPAddress: rec.IPAddress,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// DeleteByTokenHash removes a session by its token hash.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	n, err := r.client.Del(ctx, r.key(tokenHash)).Result()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	if n == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires the keys itself.
func (r *SessionRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
