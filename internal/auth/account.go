// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// DateLayout is the wire and storage format for dates of birth.
const DateLayout = "2006-01-02"

// Account is the identity and credential record of a user.
// ID is assigned by the store on creation.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Phone        *string
	DateOfBirth  *time.Time
	CreatedAt    time.Time
}

// NewAccount creates a validated Account ready to be stored.
// The password must already be hashed; phone and dateOfBirth are optional.
func NewAccount(username, email, passwordHash string, phone *string, dateOfBirth *time.Time) (*Account, error) {
	if username == "" {
		return nil, oops.Code("ACCOUNT_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &Account{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Phone:        phone,
		DateOfBirth:  dateOfBirth,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Gender is the profile gender attribute.
type Gender string

// Known genders. The registration form does not collect one.
const (
	GenderUnspecified Gender = "unspecified"
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderOther       Gender = "other"
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool {
	switch g {
	case GenderUnspecified, GenderFemale, GenderMale, GenderOther:
		return true
	}
	return false
}

// Profile holds the descriptive attributes of an account.
type Profile struct {
	AccountID int64
	FirstName string
	LastName  string
	Gender    Gender
}

// NewProfile creates a Profile. AccountID is filled in by the store once the
// owning account exists. An empty gender defaults to GenderUnspecified.
func NewProfile(firstName, lastName string, gender Gender) (*Profile, error) {
	if gender == "" {
		gender = GenderUnspecified
	}
	if !gender.Valid() {
		return nil, oops.Code("PROFILE_INVALID_GENDER").
			With("gender", string(gender)).
			Errorf("unknown gender %q", gender)
	}
	return &Profile{
		FirstName: firstName,
		LastName:  lastName,
		Gender:    gender,
	}, nil
}

// AccountRepository manages account persistence.
// Lookups are exact and case-sensitive.
type AccountRepository interface {
	// Create stores a new account and sets its ID.
	// Returns a *DuplicateKeyError if username or email is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id int64) (*Account, error)

	// GetByUsername retrieves an account by username.
	// Returns ErrNotFound if no account has the given username.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByEmail retrieves an account by email.
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Delete removes an account and, through the foreign key, its profile.
	Delete(ctx context.Context, id int64) error
}

// ProfileRepository manages profile persistence.
type ProfileRepository interface {
	// Create stores a profile. Returns ErrReferential if the account does not exist.
	Create(ctx context.Context, profile *Profile) error

	// GetByAccount retrieves the profile owned by an account.
	GetByAccount(ctx context.Context, accountID int64) (*Profile, error)
}

// Transactor runs fn inside a single storage transaction. Repositories from
// the same backend pick the transaction up from the context passed to fn.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
