// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestReloadServiceRunsReloadOnSignal(t *testing.T) {
	var reloads atomic.Int32
	svc := NewReloadService(func(ctx context.Context) error {
		reloads.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()

	svc.signals <- syscall.SIGHUP

	deadline := time.After(2 * time.Second)
	for reloads.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("reload was not triggered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not stop after cancel")
	}
}

func TestReloadServiceKeepsRunningAfterFailedReload(t *testing.T) {
	var reloads atomic.Int32
	svc := NewReloadService(func(ctx context.Context) error {
		if reloads.Add(1) == 1 {
			return errors.New("broken config")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = svc.Serve(ctx)
	}()

	svc.signals <- syscall.SIGHUP
	svc.signals <- syscall.SIGHUP

	deadline := time.After(2 * time.Second)
	for reloads.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("reloads = %d, want 2", reloads.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
