// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"os/signal"
	"sync"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/healthhub/healthhub/internal/auth"
	"github.com/healthhub/healthhub/internal/auth/postgres"
	"github.com/healthhub/healthhub/internal/config"
	"github.com/healthhub/healthhub/internal/logging"
	"github.com/healthhub/healthhub/internal/observability"
	"github.com/healthhub/healthhub/internal/web"
	"github.com/healthhub/healthhub/pkg/errutil"
)

// serveOptions holds flags that only apply to serve.
type serveOptions struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HealthHub API server",
		Long: `Start the public registration and sign-in API together with the
metrics and health endpoints and the expired-session janitor.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cmd, opts, nil)
		},
	}

	cmd.Flags().BoolVar(&opts.autoMigrate, "auto-migrate", true, "apply pending PostgreSQL migrations on startup")

	return cmd
}

// runServeWithDeps runs the server until ctx is done or a listener fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, opts *serveOptions, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.BackendFactory == nil {
		deps.BackendFactory = openBackend
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (AutoMigrator, error) {
			return postgres.NewMigrator(url)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, checker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, checker)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.SetDefault("healthhub", version, cfg.Log.Format, cfg.Log.Level)
	logger.Info("starting healthhub",
		"addr", cfg.Server.Addr,
		"database_driver", cfg.Database.Driver,
		"session_backend", cfg.Session.Backend)

	if cfg.Database.Driver == config.DriverPostgres && opts.autoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	backend, err := deps.BackendFactory(ctx, cfg, logger)
	if err != nil {
		return oops.Code("BACKEND_OPEN_FAILED").With("driver", cfg.Database.Driver).Wrap(err)
	}
	defer backend.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, backend.ready)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Server.MetricsAddr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
	}

	registration, service, sessions, err := buildServices(cfg, backend, metrics, logger)
	if err != nil {
		stopObservability(obsServer, cfg, logger)
		return err
	}

	api, err := web.NewServer(web.Config{
		CookieName:     cfg.Session.CookieName,
		CookieSecure:   cfg.Session.CookieSecure,
		SessionTTL:     cfg.Session.TTL,
		AllowedOrigins: cfg.Security.AllowedOrigins,
		RateLimit:      cfg.Security.RateLimit,
		RateBurst:      cfg.Security.RateBurst,
	}, registration, service, metrics, logger)
	if err != nil {
		stopObservability(obsServer, cfg, logger)
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		stopObservability(obsServer, cfg, logger)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions.RunJanitor(ctx, cfg.Session.PurgeInterval)
	}()

	apiErrChan := make(chan error, 1)
	go func() {
		defer close(apiErrChan)
		if err := api.Serve(listener); err != nil {
			apiErrChan <- err
		}
	}()

	cmd.Println("HealthHub started")
	logger.Info("healthhub ready", "addr", listener.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-apiErrChan:
		if ok && err != nil {
			serveErr = err
			errutil.LogError(logger, "api server failed", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	stopObservability(obsServer, cfg, logger)
	wg.Wait()

	logger.Info("shutdown complete")
	return serveErr
}

// buildServices wires the credential core over backend.
func buildServices(cfg *config.Config, backend *Backend, metrics *observability.Metrics, logger *slog.Logger) (*auth.RegistrationService, *auth.Service, *auth.SessionManager, error) {
	storeOpts := []auth.StoreOption{
		auth.WithOperationTimeout(cfg.Database.OpTimeout),
		auth.WithStoreLogger(logger),
	}
	if backend.Transactor != nil {
		storeOpts = append(storeOpts, auth.WithTransactor(backend.Transactor))
	}
	credentials, err := auth.NewCredentialStore(backend.Accounts, backend.Profiles, auth.NewArgon2idHasher(), storeOpts...)
	if err != nil {
		return nil, nil, nil, err
	}

	sessions, err := auth.NewSessionManager(backend.Sessions,
		auth.WithSessionTTL(cfg.Session.TTL),
		auth.WithSessionTimeout(cfg.Database.OpTimeout),
		auth.WithSessionLogger(logger),
		auth.WithPurgeHook(metrics.RecordPurged),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	registration, err := auth.NewRegistrationService(credentials, sessions, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	service, err := auth.NewAuthService(credentials, sessions, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return registration, service, sessions, nil
}

// autoMigrate applies pending migrations before the pool opens.
func autoMigrate(deps *ServeDeps, databaseURL string, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

func stopObservability(obs ObservabilityServer, cfg *config.Config, logger *slog.Logger) {
	if obs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := obs.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
