// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/healthhub/healthhub/internal/auth"
)

const accountColumns = `id, username, email, password_hash, phone, date_of_birth, created_at`

// AccountRepository implements auth.AccountRepository on SQLite.
type AccountRepository struct {
	db *sql.DB
}

var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account and sets its ID.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	var dob *string
	if account.DateOfBirth != nil {
		s := account.DateOfBirth.Format(auth.DateLayout)
		dob = &s
	}
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO accounts (username, email, password_hash, phone, date_of_birth, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, account.Username, account.Email, account.PasswordHash, account.Phone, dob, toUnix(account.CreatedAt))
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", account.Username).
			Wrap(mapWriteError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "read account id").Wrap(err)
	}
	account.ID = id
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*auth.Account, error) {
	return r.get(ctx, "id", id)
}

// GetByUsername retrieves an account by exact username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	return r.get(ctx, "username", username)
}

// GetByEmail retrieves an account by exact email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return r.get(ctx, "email", email)
}

// Delete removes an account. The profile and sessions cascade.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").With("account_id", id).Wrap(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("account_id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// get looks an account up by one of the fixed key columns. SQLite compares
// TEXT with BINARY collation, so lookups are case-sensitive.
func (r *AccountRepository) get(ctx context.Context, column string, value any) (*auth.Account, error) {
	var (
		a         auth.Account
		phone     sql.NullString
		dob       sql.NullString
		createdAt int64
	)
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+column+` = ?`, value).
		Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &phone, &dob, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(column, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("operation", "get account by "+column).Wrap(err)
	}

	if phone.Valid {
		a.Phone = &phone.String
	}
	if dob.Valid {
		t, err := time.Parse(auth.DateLayout, dob.String)
		if err != nil {
			return nil, oops.Code("ACCOUNT_GET_FAILED").With("date_of_birth", dob.String).Wrap(err)
		}
		a.DateOfBirth = &t
	}
	a.CreatedAt = fromUnix(createdAt)
	return &a, nil
}
