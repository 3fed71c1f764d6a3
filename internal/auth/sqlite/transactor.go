// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package sqlite

import (
	"context"
	"database/sql"

	"github.com/samber/oops"

	"github.com/healthhub/healthhub/internal/auth"
)

// Transactor implements auth.Transactor for SQLite.
type Transactor struct {
	db *sql.DB
}

var _ auth.Transactor = (*Transactor)(nil)

// NewTransactor creates a Transactor over db.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// InTransaction runs fn in a transaction carried by the context. fn's
// error rolls the transaction back.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}
