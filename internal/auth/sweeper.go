// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the revocation sweeper prunes the
// denylist when no interval is configured.
const DefaultSweepInterval = time.Hour

// RevocationSweeper periodically deletes denylist rows whose refresh
// tokens have expired. Expired tokens fail signature-side validation, so
// the rows only cost storage; sweeping keeps the denylist small.
type RevocationSweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger

	// record, when set, receives the number of rows each sweep removed.
	record func(deleted int64)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SweeperOption configures a RevocationSweeper.
type SweeperOption func(*RevocationSweeper)

// WithSweepInterval sets the time between sweeps.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *RevocationSweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepRecorder registers a callback invoked with each sweep's
// deleted-row count.
func WithSweepRecorder(fn func(deleted int64)) SweeperOption {
	return func(s *RevocationSweeper) { s.record = fn }
}

// WithSweepLogger sets the sweeper's logger.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *RevocationSweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRevocationSweeper creates a sweeper over the store's denylist.
func NewRevocationSweeper(store Store, opts ...SweeperOption) *RevocationSweeper {
	s := &RevocationSweeper{
		store:    store,
		interval: DefaultSweepInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins periodic sweeping.
func (s *RevocationSweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the sweeper and waits for the running sweep to finish.
func (s *RevocationSweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *RevocationSweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of rows removed.
func (s *RevocationSweeper) SweepOnce(ctx context.Context) (int64, error) {
	deleted, err := s.store.RevokedTokens().DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if s.record != nil {
		s.record(deleted)
	}
	return deleted, nil
}

func (s *RevocationSweeper) sweep(ctx context.Context) {
	deleted, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("revocation sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("revocation sweep removed expired rows", "deleted", deleted)
	}
}
