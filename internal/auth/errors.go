// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Repositories and services wrap these with oops codes and
// context; callers match them with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a uniqueness constraint rejects a write.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrReferential is returned when a write references a missing account.
	ErrReferential = errors.New("referential integrity violation")

	// ErrStoreUnavailable is returned for transport failures and timeouts.
	// The whole request is safe to retry.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// ErrOrphanedAccount is returned when a profile could not be created and
	// the account created just before it could not be removed either.
	ErrOrphanedAccount = errors.New("orphaned account")

	// ErrInvalidCredentials is returned for an unknown username or a wrong
	// password. The two causes are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrRegistrationFailed is returned when registration failed for a reason
	// the user cannot correct.
	ErrRegistrationFailed = errors.New("registration failed")
)

// Identity fields that carry a uniqueness constraint.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
)

// DuplicateKeyError reports which identity field violated a uniqueness
// constraint. Field is empty when the backend could not tell.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	if e.Field == "" {
		return ErrDuplicateKey.Error()
	}
	return fmt.Sprintf("duplicate key: %s", e.Field)
}

// Is makes errors.Is(err, ErrDuplicateKey) hold.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// ValidationErrors is the accumulated list of user-correctable problems with
// a registration. Messages are safe to show verbatim.
type ValidationErrors struct {
	Messages []string
}

// Add appends a message.
func (v *ValidationErrors) Add(msg string) {
	v.Messages = append(v.Messages, msg)
}

// Empty reports whether no message has been recorded.
func (v *ValidationErrors) Empty() bool {
	return v == nil || len(v.Messages) == 0
}

func (v *ValidationErrors) Error() string {
	return "validation failed: " + strings.Join(v.Messages, "; ")
}

// User-facing messages.
const (
	MsgFirstNameRequired  = "First name is required."
	MsgLastNameRequired   = "Last name is required."
	MsgEmailInvalid       = "A valid email is required."
	MsgUsernameRequired   = "Username is required."
	MsgPasswordTooShort   = "Password must be at least 6 characters."
	MsgDateOfBirthInvalid = "Date of birth must be a valid date (YYYY-MM-DD)."
	MsgUsernameTaken      = "That username is already taken."
	MsgEmailTaken         = "An account with that email already exists."
	MsgIdentityTaken      = "That username or email is already registered."
	MsgMissingCredentials = "Please enter both username and password."
	MsgInvalidCredentials = "Invalid username or password."
	MsgStoreUnavailable   = "Something went wrong. Please try again."
	MsgRegistrationFailed = "Registration failed. Please try again."
)

// UserMessage maps an error returned by the services to the single
// user-facing message that describes it. Validation errors are joined;
// callers that want the list should use errors.As with *ValidationErrors.
func UserMessage(err error) string {
	var verrs *ValidationErrors
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verrs):
		return strings.Join(verrs.Messages, " ")
	case errors.Is(err, ErrMissingCredentials):
		return MsgMissingCredentials
	case errors.Is(err, ErrInvalidCredentials):
		return MsgInvalidCredentials
	case errors.Is(err, ErrStoreUnavailable):
		return MsgStoreUnavailable
	default:
		return MsgRegistrationFailed
	}
}
