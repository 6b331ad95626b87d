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
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultRecorderBuffer is the event backlog a recorder absorbs before
// it starts dropping.
const DefaultRecorderBuffer = 256

// Recorder accepts events from request paths. Implementations must
// never block the caller.
type Recorder interface {
	Record(event Event)
	Close() error
}

// NopRecorder discards every event. Used when the journal is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}
func (NopRecorder) Close() error { return nil }

// JournalRecorder drains events to a Journal on a single background
// worker. Record is non-blocking: when the buffer is full the event is
// dropped and counted, which is the right trade for telemetry.
type JournalRecorder struct {
	journal *Journal
	ch      chan Event
	stop    chan struct{}
	done    chan struct{}
	logger  *slog.Logger

	dropped   atomic.Uint64
	closeOnce sync.Once
}

// RecorderOption customizes recorder construction.
type RecorderOption func(*recorderConfig)

type recorderConfig struct {
	buffer int
	logger *slog.Logger
}

// WithBuffer overrides the event buffer size. Zero means unbuffered.
func WithBuffer(n int) RecorderOption {
	return func(c *recorderConfig) {
		if n >= 0 {
			c.buffer = n
		}
	}
}

// WithRecorderLogger overrides the recorder's logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(c *recorderConfig) {
		c.logger = logger
	}
}

// NewRecorder starts a recorder draining into journal.
func NewRecorder(journal *Journal, opts ...RecorderOption) *JournalRecorder {
	cfg := recorderConfig{
		buffer: DefaultRecorderBuffer,
		logger: slog.Default().With(slog.String("component", "recorder")),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &JournalRecorder{
		journal: journal,
		ch:      make(chan Event, cfg.buffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  cfg.logger,
	}
	go r.run()
	return r
}

// Record queues an event for the background worker. Never blocks; the
// event is dropped when the buffer is full or the recorder is closed.
func (r *JournalRecorder) Record(event Event) {
	select {
	case <-r.stop:
		r.countDrop()
		return
	default:
	}
	select {
	case r.ch <- event:
	default:
		r.countDrop()
	}
}

func (r *JournalRecorder) countDrop() {
	journalDropped.Inc()
	if n := r.dropped.Add(1); n == 1 || n%1000 == 0 {
		r.logger.Warn("telemetry events dropped", slog.Uint64("total_dropped", n))
	}
}

// Dropped returns how many events were discarded since start.
func (r *JournalRecorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops the worker after draining buffered events. Safe to call
// more than once; events recorded after Close are dropped.
func (r *JournalRecorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.stop)
	})
	<-r.done
	return nil
}

func (r *JournalRecorder) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			// Drain whatever is buffered, then exit. The channel is
			// never closed, so late Record calls cannot panic; they
			// observe stop and drop.
			for {
				select {
				case event := <-r.ch:
					r.append(event)
				default:
					return
				}
			}
		case event := <-r.ch:
			r.append(event)
		}
	}
}

func (r *JournalRecorder) append(event Event) {
	if _, err := r.journal.Append(context.Background(), event); err != nil {
		r.logger.Warn("event append failed",
			slog.String("kind", string(event.Kind)),
			slog.String("error", err.Error()))
	}
}
