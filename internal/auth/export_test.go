// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package auth

// DummyPasswordHash exposes the unknown-user hash to tests.
const DummyPasswordHash = dummyPasswordHash
