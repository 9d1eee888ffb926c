// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/authgate/internal/logging"
	"github.com/tomtom215/authgate/internal/permission"
	"github.com/tomtom215/authgate/internal/store"
	"github.com/tomtom215/authgate/internal/token"
)

// SubjectInput is the input.subject document: the resolved identity and
// authorization context of the user performing the request.
type SubjectInput struct {
	// ID is the unique, immutable identifier of the user.
	ID string `json:"id"`

	// Username is the login name. Usernames may be mutable depending on
	// deployment configuration; prefer ID in policies.
	Username string `json:"username"`

	// Roles lists the roles assigned to the user, or to the API token for
	// API-token requests. Role permissions are not exposed here; use the
	// resolved Permissions set instead.
	Roles []store.Role `json:"roles"`

	// Permissions is the full permission set after tree expansion over all
	// roles.
	Permissions []string `json:"permissions"`

	// Fields holds the custom user fields visible to the user themselves.
	Fields map[string]any `json:"fields"`

	// Email is the primary email address, empty if none is configured.
	Email string `json:"email"`

	// DisplayName is the human-readable name.
	DisplayName string `json:"display_name"`

	// TokenKind reports how the access token was obtained: "password",
	// "mfa", "webauthn" or "api".
	TokenKind token.Kind `json:"token_kind"`
}

// NewSubjectInput resolves the subject document for a validated token.
//
// Roles come from the token itself for API tokens and from the user record
// otherwise. Role permissions are expanded through the permission tree, and
// custom fields are filtered to those the user may see about themselves.
func NewSubjectInput(
	ctx context.Context,
	dir store.Directory,
	tree *permission.Tree,
	schema store.FieldSchema,
	userID string,
	kind token.Kind,
	tokenID string,
) (*SubjectInput, error) {
	user, err := dir.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %q: %w", userID, err)
	}

	if user.Deleted {
		return nil, fmt.Errorf("user %q has been deleted", userID)
	}

	var roles []store.Role
	if kind == token.KindAPI {
		roles, err = dir.GetRolesForToken(ctx, tokenID)
	} else {
		roles, err = dir.GetRolesForUser(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user or token roles: %w", err)
	}

	assigned := make([]string, 0, len(roles))
	for _, role := range roles {
		perms, err := dir.GetRolePermissions(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get permissions for role %q: %w", role.ID, err)
		}
		assigned = append(assigned, perms...)
	}

	var mail string
	if primary, err := dir.GetPrimaryEmail(ctx, userID); err == nil {
		mail = primary
	} else if !errors.Is(err, store.ErrNotFound) {
		logging.Ctx(ctx).Error().Err(err).Str("user", userID).Msg("failed to get primary email address")
	}

	fields := make(map[string]any, len(user.Fields))
	for name, value := range user.Fields {
		if schema == nil || schema.FieldVisible(name, store.ViewerSelf) {
			fields[name] = value
		}
	}

	return &SubjectInput{
		ID:          user.ID,
		Username:    user.Username,
		Roles:       roles,
		Permissions: tree.ExpandAll(assigned),
		Fields:      fields,
		Email:       mail,
		DisplayName: user.DisplayName,
		TokenKind:   kind,
	}, nil
}
