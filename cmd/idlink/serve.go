// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/auth/postgres"
	"github.com/idlink/idlink/internal/config"
	"github.com/idlink/idlink/internal/httpapi"
	"github.com/idlink/idlink/internal/logging"
	"github.com/idlink/idlink/internal/mail"
	"github.com/idlink/idlink/internal/observability"
	"github.com/idlink/idlink/internal/provider"
	"github.com/idlink/idlink/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP API server that handles registration, email
verification, login, social authentication, and session refresh.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("addr", config.DefaultAddr, "API listen address")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", config.DefaultLogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	// Set up default factories
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, url string) (Database, error) {
			return store.Open(ctx, url)
		}
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = func(db Database) (auth.Store, error) {
			pool, ok := db.(*pgxpool.Pool)
			if !ok {
				return nil, oops.Code("DB_CONNECT_FAILED").Errorf("unexpected database handle %T", db)
			}
			return postgres.NewStore(pool), nil
		}
	}
	if deps.MailSenderFactory == nil {
		deps.MailSenderFactory = buildMailSender
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(cfg httpapi.Config, d httpapi.Deps) (APIServer, error) {
			return httpapi.NewServer(cfg, d)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.DatabaseURLGetter == nil {
		deps.DatabaseURLGetter = func() string {
			return os.Getenv("DATABASE_URL")
		}
	}

	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	logging.SetDefault("idlink", version, cfg.Log.Format, cfg.Log.Level)

	slog.Info("starting idlink",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
	)

	databaseURL := cfg.Database.URL
	if databaseURL == "" {
		databaseURL = deps.DatabaseURLGetter()
	}
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database URL is required: set database.url or DATABASE_URL")
	}

	db, err := deps.PoolFactory(ctx, databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	slog.Info("connected to database")

	authStore, err := deps.StoreFactory(db)
	if err != nil {
		return err
	}

	issuer, err := auth.NewJWTIssuer(
		[]byte(cfg.Session.Secret),
		cfg.Session.AccessTokenTTL,
		cfg.Session.RefreshTokenTTL,
	)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "build issuer").Wrap(err)
	}

	sender, err := deps.MailSenderFactory(cfg.Mail)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "build mail sender").Wrap(err)
	}

	service, err := auth.NewService(auth.ServiceDeps{
		Store:     authStore,
		Hasher:    auth.NewArgon2idHasher(),
		Issuer:    issuer,
		Providers: provider.NewRegistry(registryConfig(cfg.Providers)),
		Mail:      sender,
		Logger:    slog.Default(),
	}, auth.ServiceConfig{
		VerificationBaseURL: cfg.Server.BaseURL,
		ProviderTimeout:     cfg.Providers.Timeout,
	})
	if err != nil {
		return oops.Code("SERVICE_INIT_FAILED").Wrap(err)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Second)
			defer pingCancel()
			return db.Ping(pingCtx) == nil
		})
		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(obsErr)
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	apiServer, err := deps.APIServerFactory(httpapi.Config{
		Addr:          cfg.Server.Addr,
		CORSOrigins:   cfg.Server.CORSOrigins,
		CookieName:    cfg.Session.CookieName,
		CookiePath:    cfg.Session.CookiePath,
		SecureCookies: cfg.Production(),
		RefreshTTL:    cfg.Session.RefreshTokenTTL,
	}, httpapi.Deps{
		Auth:    service,
		Issuer:  issuer,
		Metrics: metrics,
		Logger:  slog.Default(),
	})
	if err != nil {
		return stopAndWrap(obsServer, cfg.Server.ShutdownTimeout,
			oops.Code("API_INIT_FAILED").Wrap(err))
	}

	apiErrChan, err := apiServer.Start()
	if err != nil {
		return stopAndWrap(obsServer, cfg.Server.ShutdownTimeout,
			oops.Code("API_START_FAILED").Wrap(err))
	}
	// Monitor API server errors - cancel context on error
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	slog.Info("api server started", "addr", apiServer.Addr())

	// Prune expired denylist rows in the background.
	sweeper := auth.NewRevocationSweeper(authStore,
		auth.WithSweepRecorder(observability.RecordRevokedTokensDeleted),
	)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("idlink server started")

	// Wait for shutdown signal or server failure
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// stopAndWrap stops the observability server during failed startup and
// returns the original error.
func stopAndWrap(obs ObservabilityServer, timeout time.Duration, err error) error {
	if obs == nil {
		return err
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if stopErr := obs.Stop(stopCtx); stopErr != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", stopErr)
	}
	return err
}

// buildMailSender selects the SMTP sender when a host is configured and
// the log-only sender otherwise.
func buildMailSender(cfg config.Mail) (auth.EmailSender, error) {
	if cfg.Host == "" {
		return mail.NewLogSender(slog.Default()), nil
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}

// registryConfig maps the provider settings onto adapter configs.
func registryConfig(cfg config.Providers) provider.RegistryConfig {
	client := func(c config.OAuthClient) provider.Config {
		return provider.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
		}
	}
	return provider.RegistryConfig{
		Google:   client(cfg.Google),
		GitHub:   client(cfg.GitHub),
		Facebook: client(cfg.Facebook),
		LinkedIn: client(cfg.LinkedIn),
	}
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error, so a server failure triggers graceful shutdown of the
// whole process. It exits when an error arrives, the channel closes, or
// the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
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
		// Context cancelled, exit monitoring
	}
}
