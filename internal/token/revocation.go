// Authgate - Forward-Authentication Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const revokedKeyPrefix = "revoked:"

// BadgerRevocationStore persists revoked token IDs in BadgerDB. Entries
// carry a TTL matching the token's remaining lifetime, so revocations expire
// together with the token they block.
type BadgerRevocationStore struct {
	db *badger.DB
}

// NewBadgerRevocationStore wraps an existing BadgerDB handle.
func NewBadgerRevocationStore(db *badger.DB) *BadgerRevocationStore {
	return &BadgerRevocationStore{db: db}
}

// OpenBadgerRevocationStore opens (or creates) a BadgerDB at path and wraps
// it. The caller owns the store and must Close it.
func OpenBadgerRevocationStore(path string) (*BadgerRevocationStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open revocation store at %s: %w", path, err)
	}

	return &BadgerRevocationStore{db: db}, nil
}

// Revoke marks a token ID as revoked until the given expiry.
func (s *BadgerRevocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already past its lifetime, nothing to block.
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(revokedKeyPrefix+tokenID), []byte{1}).WithTTL(ttl)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set revocation: %w", err)
		}
		return nil
	})
}

// IsRevoked reports whether a token ID has been revoked.
func (s *BadgerRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var revoked bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(revokedKeyPrefix + tokenID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get revocation: %w", err)
		}

		revoked = true
		return nil
	})

	return revoked, err
}

// Close releases the underlying database.
func (s *BadgerRevocationStore) Close() error {
	return s.db.Close()
}
