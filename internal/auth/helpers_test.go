// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/healthhub/healthhub/internal/auth"
	"github.com/healthhub/healthhub/internal/auth/memory"
)

// fastHasher keeps argon2id cheap in tests.
func fastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time:    1,
		Memory:  64,
		Threads: 1,
		SaltLen: 16,
		KeyLen:  32,
	})
}

// validInput is a registration that passes every rule.
func validInput() auth.RegistrationInput {
	return auth.RegistrationInput{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
		Username:  "jdoe",
		Password:  "s3cret!",
	}
}

// stack is a fully wired core over the memory backend.
type stack struct {
	store        *memory.Store
	credentials  *auth.CredentialStore
	sessions     *auth.SessionManager
	registration *auth.RegistrationService
	auth         *auth.Service
}

func newStack(t *testing.T, opts ...auth.SessionManagerOption) *stack {
	t.Helper()
	backend := memory.NewStore()

	credentials, err := auth.NewCredentialStore(backend.Accounts(), backend.Profiles(), fastHasher(),
		auth.WithOperationTimeout(time.Second))
	require.NoError(t, err)

	sessions, err := auth.NewSessionManager(backend.Sessions(), opts...)
	require.NoError(t, err)

	registration, err := auth.NewRegistrationService(credentials, sessions, nil)
	require.NoError(t, err)

	svc, err := auth.NewAuthService(credentials, sessions, nil)
	require.NoError(t, err)

	return &stack{
		store:        backend,
		credentials:  credentials,
		sessions:     sessions,
		registration: registration,
		auth:         svc,
	}
}
