// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package services

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/authgate/internal/logging"
)

// ReloadService listens for SIGHUP and runs the configured reload function,
// which rebuilds the decision snapshot (permission tree, policy engine,
// identity store) and swaps it into the gateway. A failed reload keeps the
// previous snapshot serving.
type ReloadService struct {
	signals chan os.Signal
	reload  func(ctx context.Context) error
}

// NewReloadService creates the reload listener.
func NewReloadService(reload func(ctx context.Context) error) *ReloadService {
	return &ReloadService{
		signals: make(chan os.Signal, 1),
		reload:  reload,
	}
}

// Serve implements suture.Service.
func (s *ReloadService) Serve(ctx context.Context) error {
	signal.Notify(s.signals, syscall.SIGHUP)
	defer signal.Stop(s.signals)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.signals:
			logging.Ctx(ctx).Info().Msg("reload requested")
			if err := s.reload(ctx); err != nil {
				logging.Ctx(ctx).Error().Err(err).Msg("reload failed, keeping previous configuration")
				continue
			}
			logging.Ctx(ctx).Info().Msg("reload complete")
		}
	}
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *ReloadService) String() string {
	return "reload-listener"
}
