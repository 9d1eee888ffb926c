// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeRevocations is an in-memory RevocationStore for validator tests.
type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[tokenID], nil
}

func signTestToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()

	signed, err := Sign([]byte(secret), claims)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	return signed
}

func TestValidatorValidate(t *testing.T) {
	validClaims := NewClaims("user-1", "alice", KindPassword, "jti-1", time.Now().Add(time.Hour))

	expiredClaims := NewClaims("user-1", "alice", KindPassword, "jti-2", time.Now().Add(-time.Hour))
	expiredClaims.NotBefore = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	expiredClaims.IssuedAt = expiredClaims.NotBefore

	audClaims := NewClaims("user-1", "alice", KindMFA, "jti-3", time.Now().Add(time.Hour))
	audClaims.Audience = jwt.ClaimStrings{"example.com"}

	tests := []struct {
		name     string
		token    string
		audience string
		revoked  RevocationStore
		wantErr  error
		wantKind Kind
	}{
		{
			name:     "valid token",
			token:    signTestToken(t, testSecret, validClaims),
			wantKind: KindPassword,
		},
		{
			name:    "expired token",
			token:   signTestToken(t, testSecret, expiredClaims),
			wantErr: ErrExpired,
		},
		{
			name:    "wrong secret",
			token:   signTestToken(t, "another-secret-another-secret-ab", validClaims),
			wantErr: ErrInvalid,
		},
		{
			name:    "malformed token",
			token:   "not.a.jwt",
			wantErr: ErrInvalid,
		},
		{
			name:     "audience match",
			token:    signTestToken(t, testSecret, audClaims),
			audience: "example.com",
			wantKind: KindMFA,
		},
		{
			name:     "audience mismatch",
			token:    signTestToken(t, testSecret, validClaims),
			audience: "example.com",
			wantErr:  ErrInvalid,
		},
		{
			name:    "revoked token",
			token:   signTestToken(t, testSecret, validClaims),
			revoked: &fakeRevocations{revoked: map[string]bool{"jti-1": true}},
			wantErr: ErrInvalid,
		},
		{
			name:    "revocation store failure fails closed",
			token:   signTestToken(t, testSecret, validClaims),
			revoked: &fakeRevocations{err: errors.New("store down")},
			wantErr: ErrInvalid,
		},
		{
			name:     "revocation store clean",
			token:    signTestToken(t, testSecret, validClaims),
			revoked:  &fakeRevocations{revoked: map[string]bool{}},
			wantKind: KindPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewValidator(testSecret, tt.audience, tt.revoked)
			if err != nil {
				t.Fatalf("NewValidator() error = %v", err)
			}

			claims, err := v.Validate(context.Background(), tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if claims.Subject != "user-1" {
				t.Errorf("Subject = %q, want %q", claims.Subject, "user-1")
			}
			if claims.Name != "alice" {
				t.Errorf("Name = %q, want %q", claims.Name, "alice")
			}
			if claims.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", claims.Kind, tt.wantKind)
			}
		})
	}
}

func TestNewValidatorRequiresSecret(t *testing.T) {
	if _, err := NewValidator("", "", nil); err == nil {
		t.Fatal("NewValidator() with empty secret did not fail")
	}
}
