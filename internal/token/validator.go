// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/authgate/internal/logging"
)

var (
	// ErrExpired marks a well-formed token whose lifetime has passed. The
	// gateway routes this to the refresh flow instead of the login flow.
	ErrExpired = errors.New("token expired")

	// ErrInvalid covers every other validation failure: malformed tokens,
	// bad signatures, wrong audience, revoked token IDs.
	ErrInvalid = errors.New("token invalid")
)

// RevocationStore answers whether a token ID has been revoked.
type RevocationStore interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Validator verifies access tokens. A nil revocation store disables the
// revocation check.
type Validator struct {
	secret   []byte
	audience string
	revoked  RevocationStore
}

// NewValidator creates a Validator for HMAC-SHA256 signed tokens.
func NewValidator(secret string, audience string, revoked RevocationStore) (*Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required but was empty")
	}

	return &Validator{
		secret:   []byte(secret),
		audience: audience,
		revoked:  revoked,
	}, nil
}

// Validate parses and verifies an access token and returns its claims.
//
// Expired tokens return ErrExpired; every other failure, including a revoked
// token ID, returns an error wrapping ErrInvalid. The revocation lookup
// honors the context deadline; a lookup failure counts as invalid so a
// broken revocation store never fails open.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalid)
	}

	if v.revoked != nil && claims.ID != "" {
		revoked, err := v.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("revocation lookup failed")
			return nil, fmt.Errorf("%w: revocation check: %w", ErrInvalid, err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token has been revoked", ErrInvalid)
		}
	}

	return claims, nil
}
