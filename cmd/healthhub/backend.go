// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/healthhub/healthhub/internal/auth/memory"
	"github.com/healthhub/healthhub/internal/auth/postgres"
	redisstore "github.com/healthhub/healthhub/internal/auth/redis"
	"github.com/healthhub/healthhub/internal/auth/sqlite"
	"github.com/healthhub/healthhub/internal/config"
	"github.com/healthhub/healthhub/internal/xdg"
)

// openBackend opens the configured database and, when asked, moves
// sessions to Redis.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	var b *Backend
	switch cfg.Database.Driver {
	case config.DriverMemory:
		store := memory.NewStore()
		b = &Backend{
			Accounts: store.Accounts(),
			Profiles: store.Profiles(),
			Sessions: store.Sessions(),
		}
		logger.Warn("using in-memory credential store; data is lost on exit")

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database.URL, postgres.ConnectOptions{
			Timeout:    cfg.Database.ConnectTimeout,
			MaxRetries: cfg.Database.ConnectRetries,
		})
		if err != nil {
			return nil, err
		}
		b = &Backend{
			Accounts:   postgres.NewAccountRepository(pool),
			Profiles:   postgres.NewProfileRepository(pool),
			Sessions:   postgres.NewSessionRepository(pool),
			Transactor: postgres.NewTransactor(pool),
			Ping:       pool.Ping,
			Close:      pool.Close,
		}
		logger.Info("connected to database", "driver", cfg.Database.Driver)

	case config.DriverSQLite:
		if err := xdg.EnsureDir(filepath.Dir(cfg.Database.SQLitePath)); err != nil {
			return nil, err
		}
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		b = &Backend{
			Accounts:   sqlite.NewAccountRepository(db),
			Profiles:   sqlite.NewProfileRepository(db),
			Sessions:   sqlite.NewSessionRepository(db),
			Transactor: sqlite.NewTransactor(db),
			Ping:       db.PingContext,
			Close: func() {
				if err := db.Close(); err != nil {
					logger.Warn("failed to close sqlite database", "error", err)
				}
			},
		}
		logger.Info("opened database", "driver", cfg.Database.Driver, "path", cfg.Database.SQLitePath)

	default:
		return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Database.Driver).Errorf("unknown database driver")
	}

	if cfg.Session.Backend != config.SessionBackendRedis {
		return b, nil
	}

	client, err := redisstore.Connect(ctx, redisstore.Options{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxRetries: cfg.Database.ConnectRetries,
	})
	if err != nil {
		b.close()
		return nil, err
	}
	logger.Info("connected to redis", "addr", cfg.Redis.Addr)

	b.Sessions = redisstore.NewSessionRepository(client)
	dbPing, dbClose := b.Ping, b.Close
	b.Ping = func(ctx context.Context) error {
		if dbPing != nil {
			if err := dbPing(ctx); err != nil {
				return err
			}
		}
		return client.Ping(ctx).Err()
	}
	b.Close = func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
		if dbClose != nil {
			dbClose()
		}
	}
	return b, nil
}

func (b *Backend) ready(ctx context.Context) error {
	if b.Ping == nil {
		return nil
	}
	return b.Ping(ctx)
}

func (b *Backend) close() {
	if b.Close != nil {
		b.Close()
	}
}
