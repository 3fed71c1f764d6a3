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

// ProfileRepository implements auth.ProfileRepository using PostgreSQL.
type ProfileRepository struct {
	pool poolIface
}

// Compile-time interface check.
var _ auth.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(pool poolIface) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// Create stores a profile.
func (r *ProfileRepository) Create(ctx context.Context, profile *auth.Profile) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO profiles (account_id, first_name, last_name, gender)
		VALUES ($1, $2, $3, $4)
	`,
		profile.AccountID,
		profile.FirstName,
		profile.LastName,
		string(profile.Gender),
	)
	if err != nil {
		return oops.Code("PROFILE_CREATE_FAILED").
			With("operation", "insert profile").
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
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT account_id, first_name, last_name, gender
		FROM profiles
		WHERE account_id = $1
	`, accountID).Scan(&p.AccountID, &p.FirstName, &p.LastName, &gender)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PROFILE_NOT_FOUND").With("account_id", accountID).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PROFILE_GET_FAILED").
			With("operation", "get profile").
			With("account_id", accountID).
			Wrap(err)
	}
	p.Gender = auth.Gender(gender)
	return &p, nil
}
