// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samber/oops"

	"github.com/healthhub/healthhub/internal/auth"
)

// ProfileRepository implements auth.ProfileRepository on SQLite.
type ProfileRepository struct {
	db *sql.DB
}

var _ auth.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create stores a profile.
func (r *ProfileRepository) Create(ctx context.Context, profile *auth.Profile) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO profiles (account_id, first_name, last_name, gender)
		VALUES (?, ?, ?, ?)
	`, profile.AccountID, profile.FirstName, profile.LastName, string(profile.Gender))
	if err != nil {
		return oops.Code("PROFILE_CREATE_FAILED").
			With("account_id", profile.AccountID).
			Wrap(mapWriteError(err))
	}
	return nil
}

// GetByAccount retrieves the profile owned by accountID.
func (r *ProfileRepository) GetByAccount(ctx context.Context, accountID int64) (*auth.Profile, error) {
	var (
		p      auth.Profile
		gender string
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT account_id, first_name, last_name, gender FROM profiles WHERE account_id = ?
	`, accountID).Scan(&p.AccountID, &p.FirstName, &p.LastName, &gender)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("PROFILE_NOT_FOUND").With("account_id", accountID).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PROFILE_GET_FAILED").With("account_id", accountID).Wrap(err)
	}
	p.Gender = auth.Gender(gender)
	return &p, nil
}
