// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/healthhub/healthhub/internal/auth"
)

const accountColumns = `id, username, email, password_hash, phone, date_of_birth, created_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account and sets its ID.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO accounts (username, email, password_hash, phone, date_of_birth, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Phone,
		account.DateOfBirth,
		account.CreatedAt,
	).Scan(&account.ID)
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", account.Username).
			Wrap(mapWriteError(err))
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*auth.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return r.get(row, "id", id)
}

// GetByUsername retrieves an account by exact username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	return r.get(row, "username", username)
}

// GetByEmail retrieves an account by exact email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return r.get(row, "email", email)
}

// Delete removes an account. The profile and sessions go with it.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("account_id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *AccountRepository) get(row pgx.Row, key string, value any) (*auth.Account, error) {
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by "+key).
			With(key, value).
			Wrap(err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var a auth.Account
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Phone, &a.DateOfBirth, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
