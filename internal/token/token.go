// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package token validates the access tokens presented to the forward-auth
// gateway. Tokens are issued by the external session subsystem; this package
// only verifies them and reports the resulting subject claims.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind reports how the access token was obtained.
type Kind string

const (
	KindInvalid  Kind = ""
	KindPassword Kind = "password"
	KindMFA      Kind = "mfa"
	KindWebauthn Kind = "webauthn"

	// KindAPI marks a long-lived API token. API tokens carry their own role
	// set instead of the owning user's roles.
	KindAPI Kind = "api"
)

// Claims are the JWT claims of an access token. Subject holds the user ID
// and ID (jti) identifies the token for revocation checks.
type Claims struct {
	Name string `json:"name,omitempty"`
	Kind Kind   `json:"kind,omitempty"`
	jwt.RegisteredClaims
}

// Sign signs claims with an HMAC-SHA256 signature. Token issuance lives in
// the session subsystem; this is used for tooling and tests.
func Sign(secret []byte, claims *Claims) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("missing signing secret")
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// NewClaims builds access-token claims for a user. Used by tooling and tests.
func NewClaims(userID, username string, kind Kind, tokenID string, expiresAt time.Time) *Claims {
	now := time.Now()

	return &Claims{
		Name: username,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}
