// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	auth "github.com/healthhub/healthhub/internal/auth"
)

// MockProfileRepository is a mock type for the ProfileRepository type
type MockProfileRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, profile
func (_m *MockProfileRepository) Create(ctx context.Context, profile *auth.Profile) error {
	ret := _m.Called(ctx, profile)

	if len(ret) == 0 {
		panic("no return value specified for Create")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *auth.Profile) error); ok {
		r0 = rf(ctx, profile)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// GetByAccount provides a mock function with given fields: ctx, accountID
func (_m *MockProfileRepository) GetByAccount(ctx context.Context, accountID int64) (*auth.Profile, error) {
	ret := _m.Called(ctx, accountID)

	if len(ret) == 0 {
		panic("no return value specified for GetByAccount")
	}

	var r0 *auth.Profile
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, int64) (*auth.Profile, error)); ok {
		return rf(ctx, accountID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, int64) *auth.Profile); ok {
		r0 = rf(ctx, accountID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*auth.Profile)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, int64) error); ok {
		r1 = rf(ctx, accountID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockProfileRepository creates a new instance of MockProfileRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockProfileRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProfileRepository {
	m := &MockProfileRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
