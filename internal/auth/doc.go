// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

// Package auth is the HealthHub credential core: account registration,
// sign-in and the server-side session lifecycle.
//
// # Domain Types
//
// Domain types should be created using their respective constructors:
//   - NewAccount - creates an Account from an already hashed password
//   - NewProfile - creates a Profile, defaulting the gender
//   - NewSession - creates a Session bound to a token hash
//
// Repository implementations receive pre-validated types from these
// constructors. Backends live in the postgres, sqlite, memory and redis
// subpackages.
//
// # Services
//
//   - CredentialStore - uniqueness-enforcing account and profile storage
//   - RegistrationService - validation, uniqueness checks, account creation
//   - Service - sign-in and sign-out
//   - SessionManager - session issue, lookup, rotation and expiry
//
// Callers pass a Caller describing the current request and receive a
// SessionHandle; there is no ambient session state.
package auth
