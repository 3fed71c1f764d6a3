// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits.
const (
	MinPasswordLength = 6
	MaxNameLength     = 30
	MaxEmailLength    = 100
	MaxUsernameLength = 50

	maxEmailLocalPart = 64
	maxEmailAddress   = 254
)

var domainLabel = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

// RegistrationInput is the raw registration form.
type RegistrationInput struct {
	FirstName   string `form:"first_name" json:"first_name"`
	LastName    string `form:"last_name" json:"last_name"`
	Email       string `form:"email" json:"email"`
	Phone       string `form:"phone" json:"phone"`
	DateOfBirth string `form:"date_of_birth" json:"date_of_birth"`
	Username    string `form:"username" json:"username"`
	Password    string `form:"password" json:"password"` //nolint:gosec // G117: form field, never serialized back
}

// Normalize returns a copy with surrounding whitespace removed from every
// text field. The password is kept verbatim.
func (in RegistrationInput) Normalize() RegistrationInput {
	return RegistrationInput{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		DateOfBirth: strings.TrimSpace(in.DateOfBirth),
		Username:    strings.TrimSpace(in.Username),
		Password:    in.Password,
	}
}

// Values returns the echoable form values. The password is never included.
func (in RegistrationInput) Values() map[string]string {
	return map[string]string{
		"first_name":    in.FirstName,
		"last_name":     in.LastName,
		"email":         in.Email,
		"phone":         in.Phone,
		"date_of_birth": in.DateOfBirth,
		"username":      in.Username,
	}
}

// ParsedOptionals holds the optional fields of a valid input in their
// stored form. Empty fields are nil.
type ParsedOptionals struct {
	Phone       *string
	DateOfBirth *time.Time
}

// Validate checks a normalized input and collects every problem. It returns
// a *ValidationErrors when at least one rule fails.
func (in RegistrationInput) Validate() (*ParsedOptionals, error) {
	verrs := &ValidationErrors{}

	checkName(verrs, in.FirstName, "First name", MsgFirstNameRequired)
	checkName(verrs, in.LastName, "Last name", MsgLastNameRequired)

	switch {
	case !ValidEmail(in.Email):
		verrs.Add(MsgEmailInvalid)
	case utf8.RuneCountInString(in.Email) > MaxEmailLength:
		verrs.Add(tooLong("Email", MaxEmailLength))
	}

	switch {
	case in.Username == "":
		verrs.Add(MsgUsernameRequired)
	case utf8.RuneCountInString(in.Username) > MaxUsernameLength:
		verrs.Add(tooLong("Username", MaxUsernameLength))
	}

	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		verrs.Add(MsgPasswordTooShort)
	}

	out := &ParsedOptionals{}
	if in.DateOfBirth != "" {
		dob, err := time.Parse(DateLayout, in.DateOfBirth)
		if err != nil {
			verrs.Add(MsgDateOfBirthInvalid)
		} else {
			out.DateOfBirth = &dob
		}
	}
	if in.Phone != "" {
		phone := in.Phone
		out.Phone = &phone
	}

	if !verrs.Empty() {
		return nil, verrs
	}
	return out, nil
}

func checkName(verrs *ValidationErrors, value, label, required string) {
	switch {
	case value == "":
		verrs.Add(required)
	case utf8.RuneCountInString(value) > MaxNameLength:
		verrs.Add(tooLong(label, MaxNameLength))
	}
}

func tooLong(label string, n int) string {
	return fmt.Sprintf("%s must be at most %d characters.", label, n)
}

// ValidEmail reports whether s is a bare addr-spec such as
// "user@example.com": no display name, no angle brackets, a dotted domain.
func ValidEmail(s string) bool {
	if s == "" || len(s) > maxEmailAddress {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}

	at := strings.LastIndexByte(s, '@')
	local, domain := s[:at], s[at+1:]
	if local == "" || len(local) > maxEmailLocalPart {
		return false
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !domainLabel.MatchString(label) {
			return false
		}
	}
	return true
}
