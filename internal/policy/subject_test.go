// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package policy

import (
	"context"
	"slices"
	"testing"

	"github.com/tomtom215/authgate/internal/permission"
	"github.com/tomtom215/authgate/internal/store"
	"github.com/tomtom215/authgate/internal/token"
)

// fakeDirectory is an in-memory store.Directory for subject tests.
type fakeDirectory struct {
	users      map[string]store.User
	userRoles  map[string][]store.Role
	tokenRoles map[string][]store.Role
	rolePerms  map[string][]string
	emails     map[string]string
}

func (d *fakeDirectory) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	user, ok := d.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (d *fakeDirectory) GetRolesForUser(ctx context.Context, userID string) ([]store.Role, error) {
	return d.userRoles[userID], nil
}

func (d *fakeDirectory) GetRolesForToken(ctx context.Context, tokenID string) ([]store.Role, error) {
	return d.tokenRoles[tokenID], nil
}

func (d *fakeDirectory) GetRolePermissions(ctx context.Context, roleID string) ([]string, error) {
	return d.rolePerms[roleID], nil
}

func (d *fakeDirectory) GetPrimaryEmail(ctx context.Context, userID string) (string, error) {
	mail, ok := d.emails[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	return mail, nil
}

func setupSubjectFixture(t *testing.T) (*fakeDirectory, *permission.Tree, store.FieldSchema) {
	t.Helper()

	dir := &fakeDirectory{
		users: map[string]store.User{
			"user-1": {
				ID:          "user-1",
				Username:    "alice",
				DisplayName: "Alice A.",
				Fields: map[string]any{
					"phone":    "+1555",
					"internal": "secret",
				},
			},
			"user-2": {ID: "user-2", Username: "ghost", Deleted: true},
		},
		userRoles: map[string][]store.Role{
			"user-1": {{ID: "editor", Name: "Editor"}},
		},
		tokenRoles: map[string][]store.Role{
			"tok-1": {{ID: "reader", Name: "Reader"}},
		},
		rolePerms: map[string][]string{
			"editor": {"calendar:write"},
			"reader": {"calendar:read"},
		},
		emails: map[string]string{
			"user-1": "alice@example.com",
		},
	}

	tree, err := permission.NewTree([]string{
		"calendar:write",
		"calendar:write:create",
		"calendar:write:delete",
		"calendar:read",
	})
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	schema, err := store.NewStaticFieldSchema([]store.StaticField{
		{Name: "phone", Visibility: store.VisibilitySelf},
		{Name: "internal", Visibility: store.VisibilityAdmin},
	})
	if err != nil {
		t.Fatalf("NewStaticFieldSchema() error = %v", err)
	}

	return dir, tree, schema
}

func TestNewSubjectInput(t *testing.T) {
	dir, tree, schema := setupSubjectFixture(t)

	subject, err := NewSubjectInput(context.Background(), dir, tree, schema, "user-1", token.KindPassword, "jti-1")
	if err != nil {
		t.Fatalf("NewSubjectInput() error = %v", err)
	}

	if subject.ID != "user-1" || subject.Username != "alice" {
		t.Errorf("identity = %s/%s, want user-1/alice", subject.ID, subject.Username)
	}
	if subject.Email != "alice@example.com" {
		t.Errorf("Email = %q", subject.Email)
	}
	if subject.DisplayName != "Alice A." {
		t.Errorf("DisplayName = %q", subject.DisplayName)
	}
	if subject.TokenKind != token.KindPassword {
		t.Errorf("TokenKind = %q", subject.TokenKind)
	}

	if len(subject.Roles) != 1 || subject.Roles[0].ID != "editor" {
		t.Errorf("Roles = %v, want [editor]", subject.Roles)
	}

	// calendar:write expands to itself plus declared descendants.
	for _, want := range []string{"calendar:write", "calendar:write:create", "calendar:write:delete"} {
		if !slices.Contains(subject.Permissions, want) {
			t.Errorf("Permissions missing %q: %v", want, subject.Permissions)
		}
	}
	if slices.Contains(subject.Permissions, "calendar:read") {
		t.Errorf("Permissions contains unassigned calendar:read: %v", subject.Permissions)
	}

	// Admin-only fields are filtered out of the self-view.
	if _, ok := subject.Fields["phone"]; !ok {
		t.Error("self-visible field phone was filtered")
	}
	if _, ok := subject.Fields["internal"]; ok {
		t.Error("admin-only field internal leaked into subject")
	}
}

func TestNewSubjectInputAPIToken(t *testing.T) {
	dir, tree, schema := setupSubjectFixture(t)

	subject, err := NewSubjectInput(context.Background(), dir, tree, schema, "user-1", token.KindAPI, "tok-1")
	if err != nil {
		t.Fatalf("NewSubjectInput() error = %v", err)
	}

	// API tokens resolve the token's roles, not the user's.
	if len(subject.Roles) != 1 || subject.Roles[0].ID != "reader" {
		t.Errorf("Roles = %v, want [reader]", subject.Roles)
	}
	if !slices.Contains(subject.Permissions, "calendar:read") {
		t.Errorf("Permissions = %v, want calendar:read", subject.Permissions)
	}
	if slices.Contains(subject.Permissions, "calendar:write") {
		t.Errorf("Permissions contains user role permission: %v", subject.Permissions)
	}
}

func TestNewSubjectInputErrors(t *testing.T) {
	dir, tree, schema := setupSubjectFixture(t)

	if _, err := NewSubjectInput(context.Background(), dir, tree, schema, "missing", token.KindPassword, ""); err == nil {
		t.Error("unknown user did not fail")
	}

	if _, err := NewSubjectInput(context.Background(), dir, tree, schema, "user-2", token.KindPassword, ""); err == nil {
		t.Error("deleted user did not fail")
	}
}
