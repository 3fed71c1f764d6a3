// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

// Package postgres implements the credential store repositories on
// PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/healthhub/healthhub/internal/auth"
)

// Constraint names from the migrations, used to tell which identity field
// a unique violation refers to.
const (
	constraintUsername = "accounts_username_unique"
	constraintEmail    = "accounts_email_unique"
)

// querier abstracts query execution for both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// poolIface is satisfied by *pgxpool.Pool and pgxmock.PgxPoolIface.
type poolIface interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// conn returns the transaction stored in ctx by Transactor, or the pool.
func conn(ctx context.Context, pool poolIface) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// ConnectOptions control how Connect waits for the database.
type ConnectOptions struct {
	// Timeout bounds the whole connect-and-ping sequence.
	Timeout time.Duration
	// MaxRetries is the number of additional ping attempts.
	MaxRetries uint64
}

// Connect opens a pool and pings it, retrying with exponential backoff
// until the database answers or the options are exhausted.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.MaxRetries, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("retries", opts.MaxRetries).
			Wrap(err)
	}
	return pool, nil
}

// mapWriteError converts constraint violations into the auth sentinels.
// Other errors are returned unchanged for the caller to wrap.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		dup := &auth.DuplicateKeyError{}
		switch pgErr.ConstraintName {
		case constraintUsername:
			dup.Field = auth.FieldUsername
		case constraintEmail:
			dup.Field = auth.FieldEmail
		}
		return dup
	case pgerrcode.ForeignKeyViolation:
		return auth.ErrReferential
	}
	return err
}
