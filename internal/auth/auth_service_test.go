// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/healthhub/healthhub/internal/auth"
	"github.com/healthhub/healthhub/internal/auth/memory"
	"github.com/healthhub/healthhub/internal/auth/mocks"
	"github.com/healthhub/healthhub/pkg/errutil"
)

func TestNewAuthService_NilDependencies(t *testing.T) {
	s := newStack(t)

	svc, err := auth.NewAuthService(nil, s.sessions, nil)
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "credential store is required")

	svc, err = auth.NewAuthService(s.credentials, nil, nil)
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "session manager is required")
}

func TestAuthService_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("successful sign-in creates session", func(t *testing.T) {
		s := newStack(t)
		_, _, err := s.registration.Register(ctx, auth.Caller{}, validInput())
		require.NoError(t, err)

		handle, token, err := s.auth.SignIn(ctx, auth.Caller{UserAgent: "Mozilla/5.0"}, " jdoe ", "s3cret!")
		require.NoError(t, err)
		assert.Len(t, token, 64) // 32 bytes hex-encoded
		assert.Equal(t, "jdoe", handle.Username)
		assert.Equal(t, "Jane", handle.GreetingName())

		current, err := s.auth.Current(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, handle.AccountID, current.AccountID)
	})

	t.Run("password is not trimmed", func(t *testing.T) {
		s := newStack(t)
		_, _, err := s.registration.Register(ctx, auth.Caller{}, validInput())
		require.NoError(t, err)

		_, _, err = s.auth.SignIn(ctx, auth.Caller{}, "jdoe", " s3cret! ")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("username is case-sensitive", func(t *testing.T) {
		s := newStack(t)
		_, _, err := s.registration.Register(ctx, auth.Caller{}, validInput())
		require.NoError(t, err)

		_, _, err = s.auth.SignIn(ctx, auth.Caller{}, "JDOE", "s3cret!")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("missing credentials never reach the store", func(t *testing.T) {
		accounts := mocks.NewMockAccountRepository(t)
		backend := memory.NewStore()
		credentials, err := auth.NewCredentialStore(accounts, backend.Profiles(), fastHasher())
		require.NoError(t, err)
		sessions, err := auth.NewSessionManager(backend.Sessions())
		require.NoError(t, err)
		svc, err := auth.NewAuthService(credentials, sessions, nil)
		require.NoError(t, err)

		for _, c := range []struct{ username, password string }{
			{"", "s3cret!"},
			{"   ", "s3cret!"},
			{"jdoe", ""},
		} {
			_, _, err := svc.SignIn(ctx, auth.Caller{}, c.username, c.password)
			require.ErrorIs(t, err, auth.ErrMissingCredentials)
			errutil.AssertErrorCode(t, err, "AUTH_MISSING_CREDENTIALS")
			assert.Equal(t, auth.MsgMissingCredentials, auth.UserMessage(err))
		}
	})

	t.Run("store failure is surfaced as unavailable", func(t *testing.T) {
		accounts := mocks.NewMockAccountRepository(t)
		accounts.On("GetByUsername", mock.Anything, "jdoe").Return(nil, errors.New("connection refused"))
		backend := memory.NewStore()
		credentials, err := auth.NewCredentialStore(accounts, backend.Profiles(), fastHasher())
		require.NoError(t, err)
		sessions, err := auth.NewSessionManager(backend.Sessions())
		require.NoError(t, err)
		svc, err := auth.NewAuthService(credentials, sessions, nil)
		require.NoError(t, err)

		_, _, err = svc.SignIn(ctx, auth.Caller{}, "jdoe", "s3cret!")
		require.ErrorIs(t, err, auth.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("account without profile signs in with empty names", func(t *testing.T) {
		s := newStack(t)
		hash, err := fastHasher().Hash("s3cret!")
		require.NoError(t, err)
		account, err := auth.NewAccount("legacy", "legacy@example.com", hash, nil, nil)
		require.NoError(t, err)
		require.NoError(t, s.store.Accounts().Create(ctx, account))

		handle, _, err := s.auth.SignIn(ctx, auth.Caller{}, "legacy", "s3cret!")
		require.NoError(t, err)
		assert.Empty(t, handle.FirstName)
		assert.Equal(t, "legacy", handle.FullName())
	})
}

func TestAuthService_SignInNeverLogsSecrets(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	backend := memory.NewStore()
	credentials, err := auth.NewCredentialStore(backend.Accounts(), backend.Profiles(), fastHasher(), auth.WithStoreLogger(logger))
	require.NoError(t, err)
	sessions, err := auth.NewSessionManager(backend.Sessions(), auth.WithSessionLogger(logger))
	require.NoError(t, err)
	registration, err := auth.NewRegistrationService(credentials, sessions, logger)
	require.NoError(t, err)
	svc, err := auth.NewAuthService(credentials, sessions, logger)
	require.NoError(t, err)

	_, regToken, err := registration.Register(ctx, auth.Caller{}, validInput())
	require.NoError(t, err)
	_, _, err = svc.SignIn(ctx, auth.Caller{}, "jdoe", "wrong-password")
	require.Error(t, err)
	_, token, err := svc.SignIn(ctx, auth.Caller{Token: regToken}, "jdoe", "s3cret!")
	require.NoError(t, err)

	output := buf.String()
	assert.NotContains(t, output, "s3cret!")
	assert.NotContains(t, output, "wrong-password")
	assert.NotContains(t, output, token)
	assert.NotContains(t, output, regToken)

	// Every line is structured.
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
	}
}

func TestAuthService_SignOut(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	_, token, err := s.registration.Register(ctx, auth.Caller{}, validInput())
	require.NoError(t, err)

	require.NoError(t, s.auth.SignOut(ctx, auth.Caller{Token: token}))
	h, err := s.auth.Current(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, h)

	// Signing out again, or anonymously, is harmless.
	require.NoError(t, s.auth.SignOut(ctx, auth.Caller{Token: token}))
	require.NoError(t, s.auth.SignOut(ctx, auth.Caller{}))
}
