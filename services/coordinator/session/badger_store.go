// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/storage/badgerdb"
)

const sessionKeyPrefix = "session:"

// BadgerStore persists sessions to the shared embedded database, so
// multi-turn state survives coordinator restarts.
//
// The optimistic version check runs inside each write transaction; a
// racing update surfaces as ErrVersionConflict either from the explicit
// check or from BadgerDB's own conflict detection.
//
// The database handle is shared with the telemetry journal and owned by
// the coordinator.
type BadgerStore struct {
	db  *badgerdb.DB
	ttl time.Duration
}

// NewBadgerStore builds a store over db whose sessions expire after ttl
// of inactivity. Non-positive ttl uses DefaultTTL.
func NewBadgerStore(db *badgerdb.DB, ttl time.Duration) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

func decodeState(item *badger.Item) (*State, error) {
	var state State
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &state)
	})
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

// Get returns the stored session, or ErrSessionNotFound.
func (s *BadgerStore) Get(_ context.Context, id string) (*State, error) {
	var state *State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		state, err = decodeState(item)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	return state, nil
}

// Put applies the optimistic write described on Store.
func (s *BadgerStore) Put(_ context.Context, state *State, expectedVersion uint64) (*State, error) {
	stored := state.Clone()
	stored.Version = expectedVersion + 1

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	key := sessionKey(state.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if expectedVersion != 0 {
				return ErrSessionNotFound
			}
		case err != nil:
			return err
		default:
			if expectedVersion == 0 {
				return ErrVersionConflict
			}
			current, err := decodeState(item)
			if err != nil {
				return err
			}
			if current.Version != expectedVersion {
				return ErrVersionConflict
			}
		}
		entry := badger.NewEntry(key, data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Delete removes the session, or reports ErrSessionNotFound.
func (s *BadgerStore) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(id)); err != nil {
			return err
		}
		return txn.Delete(sessionKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// List returns all live sessions, most recently active first.
func (s *BadgerStore) List(_ context.Context) ([]*State, error) {
	var out []*State
	prefix := []byte(sessionKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			state, err := decodeState(it.Item())
			if err != nil {
				return err
			}
			out = append(out, state)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActiveAt != out[j].LastActiveAt {
			return out[i].LastActiveAt > out[j].LastActiveAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
