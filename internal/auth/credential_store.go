// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/healthhub/healthhub/pkg/errutil"
)

// DefaultOperationTimeout bounds a single store operation.
const DefaultOperationTimeout = 5 * time.Second

// dummyPasswordHash is verified against when a username does not exist so
// that the response time does not reveal which usernames are registered.
// It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialStore is the uniqueness-enforcing persistence boundary for
// accounts and profiles. Every call is bounded by the operation timeout and
// every infrastructure failure is reported as ErrStoreUnavailable.
type CredentialStore struct {
	accounts AccountRepository
	profiles ProfileRepository
	tx       Transactor
	hasher   PasswordHasher
	timeout  time.Duration
	logger   *slog.Logger
}

// StoreOption configures a CredentialStore.
type StoreOption func(*CredentialStore)

// WithTransactor makes CreateAccountWithProfile atomic. Without one the
// store compensates by deleting the account when the profile write fails.
func WithTransactor(tx Transactor) StoreOption {
	return func(s *CredentialStore) { s.tx = tx }
}

// WithOperationTimeout sets the per-operation timeout. Zero disables it.
func WithOperationTimeout(d time.Duration) StoreOption {
	return func(s *CredentialStore) { s.timeout = d }
}

// WithStoreLogger sets the logger used for integrity anomalies.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *CredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(accounts AccountRepository, profiles ProfileRepository, hasher PasswordHasher, opts ...StoreOption) (*CredentialStore, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("accounts repository is required")
	}
	if profiles == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("profiles repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}

	s := &CredentialStore{
		accounts: accounts,
		profiles: profiles,
		hasher:   hasher,
		timeout:  DefaultOperationTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Hasher returns the password hasher used for credential verification.
func (s *CredentialStore) Hasher() PasswordHasher {
	return s.hasher
}

// FindByUsername returns the account with the exact username, or nil.
func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	account, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify("find account by username", err)
	}
	return account, nil
}

// FindByEmail returns the account with the exact email, or nil.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify("find account by email", err)
	}
	return account, nil
}

// FindProfile returns the profile owned by accountID, or nil.
func (s *CredentialStore) FindProfile(ctx context.Context, accountID int64) (*Profile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	profile, err := s.profiles.GetByAccount(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify("find profile", err)
	}
	return profile, nil
}

// CreateAccount stores account and returns the identifier the store assigned.
func (s *CredentialStore) CreateAccount(ctx context.Context, account *Account) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.accounts.Create(ctx, account); err != nil {
		return 0, s.classify("create account", err)
	}
	return account.ID, nil
}

// CreateProfile stores profile. Returns ErrReferential if its account is missing.
func (s *CredentialStore) CreateProfile(ctx context.Context, profile *Profile) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.profiles.Create(ctx, profile); err != nil {
		return s.classify("create profile", err)
	}
	return nil
}

// DeleteAccount removes an account. A missing account is not an error.
func (s *CredentialStore) DeleteAccount(ctx context.Context, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.accounts.Delete(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return s.classify("delete account", err)
	}
	return nil
}

// CreateAccountWithProfile creates both records so that afterwards either
// both exist or neither does.
func (s *CredentialStore) CreateAccountWithProfile(ctx context.Context, account *Account, profile *Profile) (int64, error) {
	if s.tx != nil {
		return s.createInTransaction(ctx, account, profile)
	}

	id, err := s.CreateAccount(ctx, account)
	if err != nil {
		return 0, err
	}

	profile.AccountID = id
	profileErr := s.CreateProfile(ctx, profile)
	if profileErr == nil {
		return id, nil
	}

	if delErr := s.DeleteAccount(ctx, id); delErr != nil {
		err := oops.Code("AUTH_ORPHANED_ACCOUNT").
			With("account_id", id).
			With("profile_error", profileErr.Error()).
			With("delete_error", delErr.Error()).
			Wrap(ErrOrphanedAccount)
		errutil.LogErrorContext(ctx, s.logger, "integrity anomaly: account left without profile", err)
		return 0, err
	}

	errutil.LogErrorContext(ctx, s.logger, "profile creation failed, account removed", profileErr)
	return 0, profileErr
}

func (s *CredentialStore) createInTransaction(ctx context.Context, account *Account, profile *Profile) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, account); err != nil {
			return err
		}
		profile.AccountID = account.ID
		return s.profiles.Create(ctx, profile)
	})
	if err != nil {
		account.ID = 0
		profile.AccountID = 0
		return 0, s.classify("create account with profile", err)
	}
	return account.ID, nil
}

// VerifyCredential returns the account when password matches the stored
// hash for username, and nil otherwise. An unknown username and a wrong
// password produce the same nil result.
func (s *CredentialStore) VerifyCredential(ctx context.Context, username, password string) (*Account, error) {
	account, err := s.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	target := dummyPasswordHash
	if account != nil {
		target = account.PasswordHash
	}

	valid, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil {
		if account != nil {
			s.logger.WarnContext(ctx, "stored password hash could not be verified",
				"account_id", account.ID,
				"error", verifyErr)
		}
		return nil, nil
	}

	if account == nil || !valid {
		return nil, nil
	}
	return account, nil
}

func (s *CredentialStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// classify keeps domain errors as they are and folds everything else,
// timeouts included, into ErrStoreUnavailable.
func (s *CredentialStore) classify(operation string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrReferential) {
		return err
	}
	return storeUnavailable(operation, err)
}
