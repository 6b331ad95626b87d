// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/storage/badgerdb"
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// journalEvents counts persisted events by kind
	journalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_journal_events_total",
		Help: "Events persisted to the journal by kind",
	}, []string{"kind"})

	// journalDropped counts events discarded before reaching the journal
	journalDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recall_journal_dropped_total",
		Help: "Events dropped because the recorder buffer was full or closed",
	})
)

// ErrJournalClosed is returned when operations are called on a closed
// journal.
var ErrJournalClosed = errors.New("journal is closed")

const (
	eventKeyPrefix = "event:"

	// DefaultRetention is how long events are kept before BadgerDB
	// expires them.
	DefaultRetention = 7 * 24 * time.Hour
)

// Journal persists events to the shared embedded database.
//
// # Description
//
// Events are stored as JSON under "event:<seq>" keys with the sequence
// number zero-padded to 16 digits so lexical key order is append order.
// The sequence counter is seeded from the highest existing key at open,
// so numbering continues across restarts. JSON rather than a binary
// encoding keeps the journal inspectable with badger tooling.
//
// The journal does not own the database handle; the coordinator opens
// one database and shares it between session storage and the journal.
//
// Thread Safety: safe for concurrent use.
type Journal struct {
	db        *badgerdb.DB
	retention time.Duration
	logger    *slog.Logger

	seq    atomic.Uint64
	closed atomic.Bool
}

// JournalOption customizes journal construction.
type JournalOption func(*Journal)

// WithRetention overrides how long events are retained. Zero keeps
// events until the database is compacted away manually.
func WithRetention(d time.Duration) JournalOption {
	return func(j *Journal) {
		j.retention = d
	}
}

// WithJournalLogger overrides the journal's logger.
func WithJournalLogger(logger *slog.Logger) JournalOption {
	return func(j *Journal) {
		j.logger = logger
	}
}

// NewJournal opens a journal over db, seeding the sequence counter from
// any events already present.
func NewJournal(db *badgerdb.DB, opts ...JournalOption) (*Journal, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}

	j := &Journal{
		db:        db,
		retention: DefaultRetention,
		logger:    slog.Default().With(slog.String("component", "journal")),
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := j.initSeq(); err != nil {
		return nil, fmt.Errorf("init sequence number: %w", err)
	}

	j.logger.Info("journal opened", slog.Uint64("last_seq", j.seq.Load()))
	return j, nil
}

// initSeq scans for the highest existing sequence number.
func (j *Journal) initSeq() error {
	prefix := []byte(eventKeyPrefix)
	var maxSeq uint64

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key with our prefix.
		seekKey := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seekKey)

		if it.ValidForPrefix(prefix) {
			key := it.Item().Key()
			var seq uint64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%016d", &seq); err == nil {
				maxSeq = seq
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.seq.Store(maxSeq)
	return nil
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", eventKeyPrefix, seq))
}

// Append persists one event and returns its assigned sequence number.
// RecordedAt is set to now when the caller left it zero.
func (j *Journal) Append(ctx context.Context, event Event) (uint64, error) {
	if j.closed.Load() {
		return 0, ErrJournalClosed
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	seq := j.seq.Add(1)
	event.Seq = seq
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(eventKey(seq), data)
		if j.retention > 0 {
			entry = entry.WithTTL(j.retention)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return 0, fmt.Errorf("write event: %w", err)
	}

	journalEvents.WithLabelValues(string(event.Kind)).Inc()
	j.logger.Debug("event appended",
		slog.Uint64("seq", seq),
		slog.String("kind", string(event.Kind)))
	return seq, nil
}

// ReplaySince streams events with sequence numbers greater than afterSeq
// to fn, in order. Returning an error from fn stops the replay and
// surfaces that error. Gaps are expected once retention expires older
// entries.
func (j *Journal) ReplaySince(ctx context.Context, afterSeq uint64, fn func(Event) error) error {
	if j.closed.Load() {
		return ErrJournalClosed
	}

	prefix := []byte(eventKeyPrefix)
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var seq uint64
			if _, err := fmt.Sscanf(string(item.Key()[len(prefix):]), "%016d", &seq); err != nil {
				continue
			}
			if seq <= afterSeq {
				continue
			}

			err := item.Value(func(val []byte) error {
				var event Event
				if err := json.Unmarshal(val, &event); err != nil {
					j.logger.Warn("skipping undecodable event",
						slog.Uint64("seq", seq),
						slog.String("error", err.Error()))
					return nil
				}
				return fn(event)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// LastSeq returns the most recently assigned sequence number.
func (j *Journal) LastSeq() uint64 {
	return j.seq.Load()
}

// Close marks the journal closed. The shared database handle is owned
// and closed by the coordinator, not here.
func (j *Journal) Close() error {
	j.closed.Store(true)
	return nil
}
