// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package main

import (
	"context"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/config"
	"github.com/idlink/idlink/internal/httpapi"
	"github.com/idlink/idlink/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory creates a database handle from a URL.
	// Default: store.Open
	PoolFactory func(ctx context.Context, url string) (Database, error)

	// StoreFactory builds the auth store on top of the database handle.
	// Default: postgres.NewStore on the pgx pool
	StoreFactory func(db Database) (auth.Store, error)

	// MailSenderFactory builds the email sender from the mail settings.
	// Default: SMTP sender, or the log sender when no host is set
	MailSenderFactory func(cfg config.Mail) (auth.EmailSender, error)

	// APIServerFactory creates the public API server.
	// Default: httpapi.NewServer
	APIServerFactory func(cfg httpapi.Config, deps httpapi.Deps) (APIServer, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// DatabaseURLGetter returns the fallback database URL.
	// Default: reads from DATABASE_URL environment variable
	DatabaseURLGetter func() string
}

// Database interface wraps the methods used from pgxpool.Pool.
type Database interface {
	Ping(ctx context.Context) error
	Close()
}

// APIServer interface wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used from
// observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
