// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/healthhub/healthhub/internal/auth"
	"github.com/healthhub/healthhub/internal/config"
	"github.com/healthhub/healthhub/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory opens the credential and session stores.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// MigratorFactory creates a PostgreSQL migrator for auto-migration.
	// Default: postgres.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the public API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// Backend is an opened set of repositories plus their lifecycle hooks.
type Backend struct {
	Accounts auth.AccountRepository
	Profiles auth.ProfileRepository
	Sessions auth.SessionRepository

	// Transactor is nil when the backend has no transactions.
	Transactor auth.Transactor

	// Ping reports whether the stores answer. Nil means always ready.
	Ping func(ctx context.Context) error

	// Close releases connections. Nil means nothing to release.
	Close func()
}

// AutoMigrator wraps the methods serve uses from postgres.Migrator.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
