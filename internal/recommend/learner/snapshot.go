// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package learner

import (
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// UserSnapshot is the persisted learner state for one user.
type UserSnapshot struct {
	Q           map[string]float64 `json:"q"`
	Visits      map[string]int     `json:"visits"`
	Episodes    int                `json:"episodes"`
	TotalReward float64            `json:"total_reward"`
}

// SnapshotStore persists per-user learner snapshots.
type SnapshotStore interface {
	// Save writes one user's snapshot.
	Save(userID string, snap UserSnapshot) error

	// Walk visits every stored snapshot. Entries that fail to decode are
	// reported through loadErr and removed from the store.
	Walk(fn func(userID string, snap UserSnapshot, loadErr error)) error

	// Close releases the store.
	Close() error
}

// snapshotKeyPrefix namespaces learner entries in the badger keyspace.
const snapshotKeyPrefix = "learner/user/"

// BadgerStore is a badger-backed SnapshotStore.
type BadgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
}

var _ SnapshotStore = (*BadgerStore)(nil)

// OpenBadgerStore opens (or creates) a badger database at path.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func OpenBadgerStore(path string, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening learner snapshot store at %q: %w", path, err)
	}

	return &BadgerStore{
		db:     db,
		logger: logger.With().Str("component", "learner_store").Logger(),
	}, nil
}

// Save writes one user's snapshot.
func (s *BadgerStore) Save(userID string, snap UserSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot for user %q: %w", userID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKeyPrefix+userID), data)
	})
}

// Walk visits every stored snapshot. Corrupt entries are passed to fn
// with a non-nil loadErr and deleted so subsequent restores stay clean.
func (s *BadgerStore) Walk(fn func(userID string, snap UserSnapshot, loadErr error)) error {
	var corruptKeys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(snapshotKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			userID := strings.TrimPrefix(string(key), snapshotKeyPrefix)

			err := item.Value(func(val []byte) error {
				var snap UserSnapshot
				if derr := json.Unmarshal(val, &snap); derr != nil {
					corruptKeys = append(corruptKeys, key)
					fn(userID, UserSnapshot{}, derr)
					return nil
				}
				fn(userID, snap, nil)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(corruptKeys) > 0 {
		if derr := s.deleteKeys(corruptKeys); derr != nil {
			s.logger.Error().Err(derr).Int("keys", len(corruptKeys)).
				Msg("failed to remove corrupt learner snapshots")
		}
	}
	return nil
}

func (s *BadgerStore) deleteKeys(keys [][]byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
