// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package main wires the forward-authentication server: configuration,
// logging, token validation, policy evaluation, and the HTTP listener
// all run under a supervision tree so individual components restart
// without taking the process down.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/authgate/internal/config"
	"github.com/tomtom215/authgate/internal/gateway"
	"github.com/tomtom215/authgate/internal/logging"
	"github.com/tomtom215/authgate/internal/supervisor"
	"github.com/tomtom215/authgate/internal/supervisor/services"
	"github.com/tomtom215/authgate/internal/token"
	"github.com/tomtom215/authgate/internal/trust"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("listen_addr", cfg.Server.Addr()).
		Str("default_outcome", cfg.ForwardAuth.Default).
		Msg("Starting authgate")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Token revocation lookups are optional; without a store path every
	// signed, unexpired token stays valid until it expires.
	var revocations token.RevocationStore
	if cfg.Session.RevocationStorePath != "" {
		badgerStore, err := token.OpenBadgerRevocationStore(cfg.Session.RevocationStorePath)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open revocation store")
		}
		defer func() {
			if err := badgerStore.Close(); err != nil {
				logging.Error().Err(err).Msg("Failed to close revocation store")
			}
		}()
		revocations = badgerStore
		logging.Info().
			Str("path", cfg.Session.RevocationStorePath).
			Msg("Revocation store opened")
	}

	validator, err := token.NewValidator(cfg.Session.JWTSecret, cfg.Session.Audience, revocations)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create token validator")
	}

	resolver, err := trust.NewResolver(cfg.Trust.TrustedNetworks, cfg.Trust.RefreshInterval)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure trusted networks")
	}

	snapshot, err := gateway.BuildSnapshot(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build initial snapshot")
	}

	handler := gateway.NewHandler(cfg, validator, resolver, snapshot)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           gateway.NewRouter(handler),
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddBackgroundService(resolver)
	tree.AddBackgroundService(services.NewReloadService(func(ctx context.Context) error {
		fresh, err := config.Load()
		if err != nil {
			return fmt.Errorf("reload configuration: %w", err)
		}
		next, err := gateway.BuildSnapshot(ctx, fresh)
		if err != nil {
			return fmt.Errorf("rebuild snapshot: %w", err)
		}
		handler.Swap(next)
		logging.Info().Msg("Configuration reloaded")
		return nil
	}))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("HTTP server starting")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Msg("Supervision tree terminated unexpectedly")
			cancel()
		}
	}

	for err := range errCh {
		if err != nil {
			logging.Warn().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop cleanly")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
