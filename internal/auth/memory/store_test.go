// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthhub/healthhub/internal/auth"
	"github.com/healthhub/healthhub/internal/auth/memory"
	"github.com/healthhub/healthhub/pkg/errutil"
)

func newAccount(t *testing.T, username, email string) *auth.Account {
	t.Helper()
	account, err := auth.NewAccount(username, email, "$argon2id$v=19$m=16,t=1,p=1$c2FsdA$aGFzaA", nil, nil)
	require.NoError(t, err)
	return account
}

func TestAccountRepository_CreateAssignsIDs(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Accounts()

	first := newAccount(t, "alice", "alice@example.com")
	second := newAccount(t, "bob", "bob@example.com")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	got, err = repo.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestAccountRepository_Duplicates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Accounts()
	require.NoError(t, repo.Create(ctx, newAccount(t, "alice", "alice@example.com")))

	tests := []struct {
		name     string
		username string
		email    string
		field    string
	}{
		{"username taken", "alice", "other@example.com", auth.FieldUsername},
		{"email taken", "other", "alice@example.com", auth.FieldEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, newAccount(t, tt.username, tt.email))
			require.ErrorIs(t, err, auth.ErrDuplicateKey)
			var dup *auth.DuplicateKeyError
			require.True(t, errors.As(err, &dup))
			assert.Equal(t, tt.field, dup.Field)
			errutil.AssertErrorCode(t, err, "ACCOUNT_DUPLICATE")
		})
	}
}

func TestAccountRepository_LookupIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Accounts()
	require.NoError(t, repo.Create(ctx, newAccount(t, "Alice", "alice@example.com")))

	_, err := repo.GetByUsername(ctx, "alice")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestProfileRepository_RequiresAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	err := store.Profiles().Create(ctx, &auth.Profile{AccountID: 42, FirstName: "A", LastName: "B", Gender: auth.GenderUnspecified})
	require.ErrorIs(t, err, auth.ErrReferential)
}

func TestAccountRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	account := newAccount(t, "alice", "alice@example.com")
	require.NoError(t, store.Accounts().Create(ctx, account))
	require.NoError(t, store.Profiles().Create(ctx, &auth.Profile{AccountID: account.ID, FirstName: "Alice", LastName: "Smith"}))

	session, err := auth.NewSession(account.ID, auth.DisplayFields{Username: "alice"}, "hash", "", "", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Sessions().Create(ctx, session))

	require.NoError(t, store.Accounts().Delete(ctx, account.ID))

	accounts, profiles, sessions := store.Counts()
	assert.Zero(t, accounts)
	assert.Zero(t, profiles)
	assert.Zero(t, sessions)

	// The username is free again.
	require.NoError(t, store.Accounts().Create(ctx, newAccount(t, "alice", "alice@example.com")))

	err = store.Accounts().Delete(ctx, account.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	account := newAccount(t, "alice", "alice@example.com")
	require.NoError(t, store.Accounts().Create(ctx, account))

	now := time.Now()
	expired, err := auth.NewSession(account.ID, auth.DisplayFields{}, "old", "", "", now.Add(-time.Minute))
	require.NoError(t, err)
	live, err := auth.NewSession(account.ID, auth.DisplayFields{}, "new", "", "", now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Sessions().Create(ctx, expired))
	require.NoError(t, store.Sessions().Create(ctx, live))

	n, err := store.Sessions().DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.Sessions().GetByTokenHash(ctx, "old")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	got, err := store.Sessions().GetByTokenHash(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)
}

func TestRepositories_HonourCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := memory.NewStore()

	_, err := store.Accounts().GetByUsername(ctx, "alice")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, auth.ErrNotFound)
}
