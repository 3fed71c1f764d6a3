// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

// Package memory provides in-process repositories for tests and single-node
// development. Uniqueness and the account/profile relation are enforced the
// same way the SQL backends enforce them. There is no transaction support,
// so the credential store compensates instead.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/healthhub/healthhub/internal/auth"
)

// Store holds every record behind a single mutex.
type Store struct {
	mu         sync.RWMutex
	nextID     int64
	accounts   map[int64]*auth.Account
	byUsername map[string]int64
	byEmail    map[string]int64
	profiles   map[int64]*auth.Profile
	sessions   map[string]*auth.Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		accounts:   make(map[int64]*auth.Account),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
		profiles:   make(map[int64]*auth.Profile),
		sessions:   make(map[string]*auth.Session),
	}
}

// Accounts returns the account repository view of the store.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Profiles returns the profile repository view of the store.
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s: s} }

// Sessions returns the session repository view of the store.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// AccountRepository implements auth.AccountRepository.
type AccountRepository struct{ s *Store }

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

// Create stores a new account and assigns its ID.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").Wrap(err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.byUsername[account.Username]; taken {
		return oops.Code("ACCOUNT_DUPLICATE").
			With("field", auth.FieldUsername).
			Wrap(&auth.DuplicateKeyError{Field: auth.FieldUsername})
	}
	if _, taken := r.s.byEmail[account.Email]; taken {
		return oops.Code("ACCOUNT_DUPLICATE").
			With("field", auth.FieldEmail).
			Wrap(&auth.DuplicateKeyError{Field: auth.FieldEmail})
	}

	r.s.nextID++
	account.ID = r.s.nextID
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	stored := *account
	r.s.accounts[stored.ID] = &stored
	r.s.byUsername[stored.Username] = stored.ID
	r.s.byEmail[stored.Email] = stored.ID
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").Wrap(err)
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.account(id)
}

// GetByUsername retrieves an account by exact username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").Wrap(err)
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byUsername[username]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	return r.s.account(id)
}

// GetByEmail retrieves an account by exact email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").Wrap(err)
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byEmail[email]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return r.s.account(id)
}

// Delete removes an account together with its profile and sessions.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").Wrap(err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id).Wrap(auth.ErrNotFound)
	}
	delete(r.s.byUsername, account.Username)
	delete(r.s.byEmail, account.Email)
	delete(r.s.accounts, id)
	delete(r.s.profiles, id)
	for hash, session := range r.s.sessions {
		if session.AccountID == id {
			delete(r.s.sessions, hash)
		}
	}
	return nil
}

// account returns a copy of the stored account. Callers hold the lock.
func (s *Store) account(id int64) (*auth.Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id).Wrap(auth.ErrNotFound)
	}
	out := *account
	return &out, nil
}

// ProfileRepository implements auth.ProfileRepository.
type ProfileRepository struct{ s *Store }

// Compile-time interface check.
var _ auth.ProfileRepository = (*ProfileRepository)(nil)

// Create stores a profile for an existing account.
func (r *ProfileRepository) Create(ctx context.Context, profile *auth.Profile) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("PROFILE_CREATE_FAILED").Wrap(err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[profile.AccountID]; !ok {
		return oops.Code("PROFILE_ACCOUNT_MISSING").
			With("account_id", profile.AccountID).
			Wrap(auth.ErrReferential)
	}
	if _, ok := r.s.profiles[profile.AccountID]; ok {
		return oops.Code("PROFILE_DUPLICATE").
			With("account_id", profile.AccountID).
			Wrap(&auth.DuplicateKeyError{})
	}
	stored := *profile
	r.s.profiles[stored.AccountID] = &stored
	return nil
}

// GetByAccount retrieves the profile owned by accountID.
func (r *ProfileRepository) GetByAccount(ctx context.Context, accountID int64) (*auth.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("PROFILE_GET_FAILED").Wrap(err)
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	profile, ok := r.s.profiles[accountID]
	if !ok {
		return nil, oops.Code("PROFILE_NOT_FOUND").With("account_id", accountID).Wrap(auth.ErrNotFound)
	}
	out := *profile
	return &out, nil
}

// SessionRepository implements auth.SessionRepository.
type SessionRepository struct{ s *Store }

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[session.AccountID]; !ok {
		return oops.Code("SESSION_ACCOUNT_MISSING").
			With("account_id", session.AccountID).
			Wrap(auth.ErrReferential)
	}
	if _, ok := r.s.sessions[session.TokenHash]; ok {
		return oops.Code("SESSION_DUPLICATE").Wrap(&auth.DuplicateKeyError{})
	}
	stored := *session
	r.s.sessions[stored.TokenHash] = &stored
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	session, ok := r.s.sessions[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	out := *session
	return &out, nil
}

// DeleteByTokenHash removes a session.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.sessions[tokenHash]; !ok {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(r.s.sessions, tokenHash)
	return nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for hash, session := range r.s.sessions {
		if session.IsExpiredAt(now) {
			delete(r.s.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Counts returns the number of stored accounts, profiles and sessions.
func (s *Store) Counts() (accounts, profiles, sessions int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), len(s.profiles), len(s.sessions)
}
