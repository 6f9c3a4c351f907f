// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package correlation pairs outgoing step envelopes with the reply that
// settles them.
//
// A caller suspends on a correlation id before emitting the triggering
// envelope, then awaits. The first envelope carrying that correlation id
// settles the slot; anything arriving after that, or after the wait gave up,
// is dropped.
package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/noldarim/ragbus/internal/logger"
	"github.com/noldarim/ragbus/internal/protocol"

	"github.com/rs/zerolog"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetOrchestratorLogger()
		log = &l
	})
	return log
}

// Table holds at most one unresolved suspension per correlation id.
type Table struct {
	mu    sync.Mutex
	slots map[string]*Suspension
}

// NewTable creates an empty correlation table.
func NewTable() *Table {
	return &Table{slots: make(map[string]*Suspension)}
}

// Suspension is a single-assignment slot waiting for one reply.
type Suspension struct {
	table         *Table
	correlationID string
	step          string
	sender        string
	reply         chan protocol.Envelope
}

// SuspendOption customises a suspension.
type SuspendOption func(*Suspension)

// ExpectSender restricts the slot to replies sent by identity. Envelopes from
// any other sender leave it pending.
func ExpectSender(identity string) SuspendOption {
	return func(s *Suspension) { s.sender = identity }
}

// Suspend registers a slot for correlationID. It must be called before the
// envelope that triggers the reply is emitted.
func (t *Table) Suspend(correlationID, step string, opts ...SuspendOption) (*Suspension, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.slots[correlationID]; ok {
		return nil, fmt.Errorf("%w: %s already awaiting %s", ErrSuspensionPending, correlationID, existing.step)
	}

	s := &Suspension{
		table:         t,
		correlationID: correlationID,
		step:          step,
		reply:         make(chan protocol.Envelope, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	t.slots[correlationID] = s
	return s, nil
}

// Resolve settles the slot registered for env.CorrelationID and reports
// whether one was waiting. Unmatched, duplicate and late envelopes return
// false, as do envelopes from a sender the slot does not expect.
func (t *Table) Resolve(env protocol.Envelope) bool {
	t.mu.Lock()
	s, ok := t.slots[env.CorrelationID]
	stray := ok && s.sender != "" && s.sender != env.Sender
	if ok && !stray {
		delete(t.slots, env.CorrelationID)
		// Buffered and removed from the table under the lock: this is the only send.
		s.reply <- env
	}
	t.mu.Unlock()

	switch {
	case stray:
		getLog().Debug().
			Str("correlation_id", env.CorrelationID).
			Str("sender", env.Sender).
			Str("expected", s.sender).
			Str("step", s.step).
			Msg("Reply from unexpected sender, dropping envelope")
		return false
	case !ok:
		getLog().Debug().
			Str("correlation_id", env.CorrelationID).
			Str("sender", env.Sender).
			Str("kind", string(env.Kind)).
			Msg("No suspension waiting, dropping envelope")
		return false
	}
	return true
}

// Pending reports whether correlationID has an unresolved suspension.
func (t *Table) Pending(correlationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.slots[correlationID]
	return ok
}

// Len returns the number of unresolved suspensions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// remove drops s from the table unless a later suspension took its place.
func (t *Table) remove(s *Suspension) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.slots[s.correlationID]; ok && current == s {
		delete(t.slots, s.correlationID)
	}
}

// CorrelationID returns the id the suspension waits on.
func (s *Suspension) CorrelationID() string {
	return s.correlationID
}

// Step returns the step name given to Suspend.
func (s *Suspension) Step() string {
	return s.step
}

// Await blocks the calling goroutine until the reply arrives, timeout
// elapses or ctx is done. The suspension is gone from the table when Await
// returns, whatever the outcome.
func (s *Suspension) Await(ctx context.Context, timeout time.Duration) (protocol.Envelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-s.reply:
		return env, nil
	case <-timer.C:
		s.table.remove(s)
		return s.drain(&StepTimeoutError{
			CorrelationID: s.correlationID,
			Step:          s.step,
			Timeout:       timeout,
		})
	case <-ctx.Done():
		s.table.remove(s)
		return s.drain(fmt.Errorf("awaiting %s for %s: %w", s.step, s.correlationID, ctx.Err()))
	}
}

// drain prefers a reply that raced the timeout over the timeout itself.
func (s *Suspension) drain(err error) (protocol.Envelope, error) {
	select {
	case env := <-s.reply:
		return env, nil
	default:
		return protocol.Envelope{}, err
	}
}

// Cancel withdraws the suspension without waiting.
func (s *Suspension) Cancel() {
	s.table.remove(s)
}
