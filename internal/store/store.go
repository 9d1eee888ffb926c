// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package store defines the narrow identity interfaces Authgate consumes.
//
// Authgate is not a user database: role and user records live in an external
// identity store and reach the decision engine only through the Directory
// interface. A static, configuration-backed implementation is bundled so the
// binary is usable standalone and tests have a deterministic fixture.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a user, role or email does not exist.
var ErrNotFound = errors.New("not found")

// Role is an identity role as exposed to policies. The JSON keys match the
// documented input document: policies address role.ID, role.Name and
// role.Description.
type Role struct {
	ID          string `json:"ID" mapstructure:"ID"`
	Name        string `json:"Name" mapstructure:"Name"`
	Description string `json:"Description,omitempty" mapstructure:"Description"`
}

// User is the identity record needed to build a policy subject.
type User struct {
	ID          string
	Username    string
	DisplayName string
	Deleted     bool

	// Fields holds the custom user fields, unfiltered. Visibility filtering
	// happens at subject-build time via FieldSchema.
	Fields map[string]any
}

// Directory supplies user, role and permission data for subject resolution.
type Directory interface {
	// GetUserByID returns the user record, or ErrNotFound.
	GetUserByID(ctx context.Context, userID string) (User, error)

	// GetRolesForUser returns the roles assigned to the user.
	GetRolesForUser(ctx context.Context, userID string) ([]Role, error)

	// GetRolesForToken returns the roles bound to an API token. API tokens
	// carry a subset of the owning user's roles.
	GetRolesForToken(ctx context.Context, tokenID string) ([]Role, error)

	// GetRolePermissions returns the raw (unexpanded) permission strings
	// assigned to a role.
	GetRolePermissions(ctx context.Context, roleID string) ([]string, error)

	// GetPrimaryEmail returns the user's primary email address, or
	// ErrNotFound when none is configured.
	GetPrimaryEmail(ctx context.Context, userID string) (string, error)
}

// Viewer identifies who is looking at a custom user field.
type Viewer int

const (
	// ViewerSelf is the user looking at their own profile.
	ViewerSelf Viewer = iota

	// ViewerAdmin is an administrator.
	ViewerAdmin

	// ViewerOther is any other authenticated user.
	ViewerOther
)

// FieldSchema decides custom-field visibility. The field type system itself
// is owned by the external schema provider; Authgate only asks whether a
// field may be shown to a given viewer.
type FieldSchema interface {
	FieldVisible(name string, viewer Viewer) bool
}
