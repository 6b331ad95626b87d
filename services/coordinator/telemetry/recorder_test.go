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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderDrainsToJournal(t *testing.T) {
	j := newTestJournal(t)
	rec := NewRecorder(j)

	rec.Record(Event{Kind: KindTurn, SessionID: "s1", Turn: 1})
	rec.Record(Event{Kind: KindTurn, SessionID: "s1", Turn: 2})
	rec.Record(Event{Kind: KindFeedback, SessionID: "s1", Confidence: 0.9})
	require.NoError(t, rec.Close())

	assert.Equal(t, uint64(3), j.LastSeq(), "Close should drain buffered events")
	assert.Equal(t, uint64(0), rec.Dropped())

	var kinds []Kind
	require.NoError(t, j.ReplaySince(context.Background(), 0, func(e Event) error {
		kinds = append(kinds, e.Kind)
		return nil
	}))
	assert.Equal(t, []Kind{KindTurn, KindTurn, KindFeedback}, kinds)
}

func TestRecorderDropsAfterClose(t *testing.T) {
	j := newTestJournal(t)
	rec := NewRecorder(j, WithBuffer(0))
	require.NoError(t, rec.Close())

	rec.Record(Event{Kind: KindTurn})
	assert.Equal(t, uint64(1), rec.Dropped())
	assert.Equal(t, uint64(0), j.LastSeq())
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	j := newTestJournal(t)
	rec := NewRecorder(j)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
}

func TestNopRecorder(t *testing.T) {
	var rec Recorder = NopRecorder{}
	rec.Record(Event{Kind: KindTurn})
	assert.NoError(t, rec.Close())
}
