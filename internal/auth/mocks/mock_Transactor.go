// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockTransactor is a mock type for the Transactor type
type MockTransactor struct {
	mock.Mock
}

// InTransaction provides a mock function with given fields: ctx, fn
func (_m *MockTransactor) InTransaction(ctx context.Context, fn func(context.Context) error) error {
	ret := _m.Called(ctx, fn)

	if len(ret) == 0 {
		panic("no return value specified for InTransaction")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, func(context.Context) error) error); ok {
		r0 = rf(ctx, fn)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockTransactor creates a new instance of MockTransactor. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockTransactor(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTransactor {
	m := &MockTransactor{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
