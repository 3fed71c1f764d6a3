// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthhub/healthhub/internal/auth"
	"github.com/healthhub/healthhub/internal/config"
	"github.com/healthhub/healthhub/pkg/errutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	return cfg
}

// register runs one registration against b to prove the stores are wired.
func register(t *testing.T, cfg *config.Config, b *Backend) {
	t.Helper()
	registration, _, _, err := buildServices(cfg, b, nil, discardLogger())
	require.NoError(t, err)

	handle, token, err := registration.Register(context.Background(), auth.Caller{}, auth.RegistrationInput{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@example.com",
		Username:  "grace",
		Password:  "cobol1959",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "Grace Hopper", handle.FullName())
}

func TestOpenBackend_Memory(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Database.Driver = config.DriverMemory

	b, err := openBackend(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer b.close()

	assert.Nil(t, b.Transactor)
	require.NoError(t, b.ready(context.Background()))
	register(t, cfg, b)
}

func TestOpenBackend_SQLite(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "healthhub.db")

	b, err := openBackend(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer b.close()

	assert.NotNil(t, b.Transactor)
	require.NoError(t, b.ready(context.Background()))
	register(t, cfg, b)
}

func TestOpenBackend_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := defaultConfig(t)
	cfg.Database.Driver = config.DriverMemory
	cfg.Session.Backend = config.SessionBackendRedis
	cfg.Redis.Addr = mr.Addr()

	b, err := openBackend(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer b.close()

	require.NoError(t, b.ready(context.Background()))
	register(t, cfg, b)
	assert.Len(t, mr.Keys(), 1)
}

func TestOpenBackend_RedisUnavailable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	cfg := defaultConfig(t)
	cfg.Database.Driver = config.DriverMemory
	cfg.Database.ConnectRetries = 0
	cfg.Session.Backend = config.SessionBackendRedis
	cfg.Redis.Addr = addr

	_, err := openBackend(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := openBackend(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}
