// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package bus

import (
	"slices"
	"sync"

	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/samber/lo"
)

// TraceLog is the append-only, in-memory record of routed envelopes.
type TraceLog struct {
	mu      sync.Mutex
	entries []protocol.Envelope
}

// NewTraceLog creates an empty trace log.
func NewTraceLog() *TraceLog {
	return &TraceLog{}
}

// Append records env at the end of the log.
func (t *TraceLog) Append(env protocol.Envelope) {
	t.mu.Lock()
	t.entries = append(t.entries, env)
	t.mu.Unlock()
}

// Entries returns a copy of the log.
func (t *TraceLog) Entries() []protocol.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.entries)
}

// For returns the entries sharing correlationID, in routing order.
func (t *TraceLog) For(correlationID string) []protocol.Envelope {
	return lo.Filter(t.Entries(), func(env protocol.Envelope, _ int) bool {
		return env.CorrelationID == correlationID
	})
}

// Len returns the number of recorded envelopes.
func (t *TraceLog) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
