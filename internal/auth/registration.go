// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/healthhub/healthhub/pkg/errutil"
)

// RegistrationService creates accounts and signs their owners in.
type RegistrationService struct {
	store    *CredentialStore
	sessions *SessionManager
	logger   *slog.Logger
}

// NewRegistrationService creates a RegistrationService.
func NewRegistrationService(store *CredentialStore, sessions *SessionManager, logger *slog.Logger) (*RegistrationService, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("session manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationService{store: store, sessions: sessions, logger: logger}, nil
}

// Register validates in, creates the account and its profile, and starts a
// fresh session for the caller.
//
// User-correctable problems, duplicates included, come back as a
// *ValidationErrors listing every message. Infrastructure failures wrap
// ErrStoreUnavailable; integrity anomalies wrap ErrRegistrationFailed.
// Nothing is written unless validation and the uniqueness pre-check pass.
func (s *RegistrationService) Register(ctx context.Context, caller Caller, in RegistrationInput) (_ *SessionHandle, _ string, err error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer finishSpan(span, &err)

	in = in.Normalize()
	span.SetAttributes(attribute.String("account.username", in.Username))

	parsed, err := in.Validate()
	if err != nil {
		return nil, "", err
	}

	if err := s.checkAvailable(ctx, in.Username, in.Email); err != nil {
		return nil, "", err
	}

	hash, err := s.store.Hasher().Hash(in.Password)
	if err != nil {
		return nil, "", oops.Code("AUTH_REGISTRATION_FAILED").
			With("operation", "hash password").
			Wrap(errors.Join(ErrRegistrationFailed, err))
	}

	account, err := NewAccount(in.Username, in.Email, hash, parsed.Phone, parsed.DateOfBirth)
	if err != nil {
		return nil, "", oops.Code("AUTH_REGISTRATION_FAILED").Wrap(errors.Join(ErrRegistrationFailed, err))
	}
	profile, err := NewProfile(in.FirstName, in.LastName, GenderUnspecified)
	if err != nil {
		return nil, "", oops.Code("AUTH_REGISTRATION_FAILED").Wrap(errors.Join(ErrRegistrationFailed, err))
	}

	accountID, err := s.store.CreateAccountWithProfile(ctx, account, profile)
	if err != nil {
		return nil, "", s.createFailure(ctx, err)
	}
	span.SetAttributes(attribute.Int64("account.id", accountID))

	handle, token, err := s.sessions.Start(ctx, caller, accountID, DisplayFields{
		Username:  account.Username,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
	})
	if err != nil {
		// Registration failed as a whole; a retry must not find the account.
		if delErr := s.store.DeleteAccount(ctx, accountID); delErr != nil {
			errutil.LogErrorContext(ctx, s.logger, "registration integrity anomaly", delErr,
				"account_id", accountID)
		}
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "account registered",
		"account_id", accountID,
		"username", account.Username)
	return handle, token, nil
}

// checkAvailable looks up the username, then the email, and reports every
// identity that is already taken.
func (s *RegistrationService) checkAvailable(ctx context.Context, username, email string) error {
	verrs := &ValidationErrors{}

	existing, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		verrs.Add(MsgUsernameTaken)
	}

	existing, err = s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		verrs.Add(MsgEmailTaken)
	}

	if !verrs.Empty() {
		return verrs
	}
	return nil
}

// createFailure maps a CreateAccountWithProfile error onto the registration
// outcome. A duplicate that slipped past the pre-check is reported the same
// way the pre-check would have reported it.
func (s *RegistrationService) createFailure(ctx context.Context, err error) error {
	var dup *DuplicateKeyError
	switch {
	case errors.As(err, &dup):
		switch dup.Field {
		case FieldUsername:
			return &ValidationErrors{Messages: []string{MsgUsernameTaken}}
		case FieldEmail:
			return &ValidationErrors{Messages: []string{MsgEmailTaken}}
		default:
			return &ValidationErrors{Messages: []string{MsgIdentityTaken}}
		}
	case errors.Is(err, ErrDuplicateKey):
		return &ValidationErrors{Messages: []string{MsgIdentityTaken}}
	case errors.Is(err, ErrOrphanedAccount), errors.Is(err, ErrReferential):
		errutil.LogErrorContext(ctx, s.logger, "registration integrity anomaly", err)
		return oops.Code("AUTH_REGISTRATION_FAILED").Wrap(errors.Join(ErrRegistrationFailed, err))
	case errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return oops.Code("AUTH_REGISTRATION_FAILED").Wrap(errors.Join(ErrRegistrationFailed, err))
	}
}
