// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package store

import (
	"context"
	"fmt"
)

// StaticUser declares a user in configuration.
type StaticUser struct {
	ID          string         `koanf:"id"`
	Username    string         `koanf:"username"`
	DisplayName string         `koanf:"display_name"`
	Email       string         `koanf:"email"`
	Roles       []string       `koanf:"roles"`
	Fields      map[string]any `koanf:"fields"`
}

// StaticRole declares a role in configuration.
type StaticRole struct {
	ID          string   `koanf:"id"`
	Name        string   `koanf:"name"`
	Description string   `koanf:"description"`
	Permissions []string `koanf:"permissions"`
}

// StaticToken binds an API token ID to a role subset.
type StaticToken struct {
	ID    string   `koanf:"id"`
	Roles []string `koanf:"roles"`
}

// Static is a Directory backed entirely by configuration. It is read-only
// and safe for concurrent use.
type Static struct {
	users       map[string]StaticUser
	roles       map[string]Role
	permissions map[string][]string
	userRoles   map[string][]string
	tokenRoles  map[string][]string
}

// NewStatic builds a Static directory from configuration records. Users
// referencing undefined roles are a configuration error.
func NewStatic(users []StaticUser, roles []StaticRole, tokens []StaticToken) (*Static, error) {
	s := &Static{
		users:       make(map[string]StaticUser, len(users)),
		roles:       make(map[string]Role, len(roles)),
		permissions: make(map[string][]string, len(roles)),
		userRoles:   make(map[string][]string, len(users)),
		tokenRoles:  make(map[string][]string, len(tokens)),
	}

	for _, r := range roles {
		if _, ok := s.roles[r.ID]; ok {
			return nil, fmt.Errorf("duplicate role %q", r.ID)
		}
		name := r.Name
		if name == "" {
			name = r.ID
		}
		s.roles[r.ID] = Role{ID: r.ID, Name: name, Description: r.Description}
		s.permissions[r.ID] = r.Permissions
	}

	for _, u := range users {
		if _, ok := s.users[u.ID]; ok {
			return nil, fmt.Errorf("duplicate user %q", u.ID)
		}
		for _, roleID := range u.Roles {
			if _, ok := s.roles[roleID]; !ok {
				return nil, fmt.Errorf("user %q references undefined role %q", u.ID, roleID)
			}
		}
		s.users[u.ID] = u
		s.userRoles[u.ID] = u.Roles
	}

	for _, t := range tokens {
		for _, roleID := range t.Roles {
			if _, ok := s.roles[roleID]; !ok {
				return nil, fmt.Errorf("token %q references undefined role %q", t.ID, roleID)
			}
		}
		s.tokenRoles[t.ID] = t.Roles
	}

	return s, nil
}

func (s *Static) GetUserByID(_ context.Context, userID string) (User, error) {
	u, ok := s.users[userID]
	if !ok {
		return User{}, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}

	return User{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Fields:      u.Fields,
	}, nil
}

func (s *Static) GetRolesForUser(_ context.Context, userID string) ([]Role, error) {
	ids, ok := s.userRoles[userID]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return s.resolveRoles(ids), nil
}

func (s *Static) GetRolesForToken(_ context.Context, tokenID string) ([]Role, error) {
	ids, ok := s.tokenRoles[tokenID]
	if !ok {
		// Unknown API tokens simply carry no roles.
		return nil, nil
	}
	return s.resolveRoles(ids), nil
}

func (s *Static) GetRolePermissions(_ context.Context, roleID string) ([]string, error) {
	return s.permissions[roleID], nil
}

func (s *Static) GetPrimaryEmail(_ context.Context, userID string) (string, error) {
	u, ok := s.users[userID]
	if !ok || u.Email == "" {
		return "", fmt.Errorf("primary email for %q: %w", userID, ErrNotFound)
	}
	return u.Email, nil
}

func (s *Static) resolveRoles(ids []string) []Role {
	roles := make([]Role, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.roles[id]; ok {
			roles = append(roles, r)
		}
	}
	return roles
}
