// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package gateway

import (
	"context"
	"fmt"

	"github.com/tomtom215/authgate/internal/config"
	"github.com/tomtom215/authgate/internal/permission"
	"github.com/tomtom215/authgate/internal/policy"
	"github.com/tomtom215/authgate/internal/store"
)

// Snapshot bundles the reloadable decision state: the compiled policy set,
// the permission tree and the identity store view. A snapshot is immutable;
// configuration reloads build a new one and swap it atomically, so requests
// keep evaluating against the snapshot they started with.
type Snapshot struct {
	Engine    *policy.Engine
	Tree      *permission.Tree
	Directory store.Directory
	Schema    store.FieldSchema
}

// BuildSnapshot constructs a snapshot from configuration. Any failure is
// fatal at startup; during a reload the caller keeps the previous snapshot.
func BuildSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	tree, err := permission.NewTree(cfg.Permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to build permission tree: %w", err)
	}

	engine, err := policy.NewEngine(ctx, policy.Options{
		Directories:        cfg.Policies.Directories,
		Inline:             cfg.Policies.Inline,
		Query:              cfg.ForwardAuth.RegoQuery,
		Default:            cfg.ForwardAuth.Default,
		AllowCORSPreflight: cfg.ForwardAuth.AllowCORSPreflight,
		Debug:              cfg.Policies.Debug,
	})
	if err != nil {
		return nil, err
	}

	directory, err := store.NewStatic(cfg.Users, cfg.Roles, cfg.Tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity store: %w", err)
	}

	schema, err := store.NewStaticFieldSchema(cfg.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build field schema: %w", err)
	}

	return &Snapshot{
		Engine:    engine,
		Tree:      tree,
		Directory: directory,
		Schema:    schema,
	}, nil
}
