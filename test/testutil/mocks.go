// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noldarim/ragbus/internal/bus"
	"github.com/noldarim/ragbus/internal/protocol"
)

// EnvelopeCapture records every envelope delivered to it.
// Register Handle on a router to observe a worker identity.
type EnvelopeCapture struct {
	mu        sync.RWMutex
	envelopes []protocol.Envelope
}

// NewEnvelopeCapture creates an empty capture.
func NewEnvelopeCapture() *EnvelopeCapture {
	return &EnvelopeCapture{}
}

// Handle implements bus.Handler.
func (c *EnvelopeCapture) Handle(_ context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envelopes = append(c.envelopes, env)
	return nil
}

// Envelopes returns a copy of what was captured.
func (c *EnvelopeCapture) Envelopes() []protocol.Envelope {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]protocol.Envelope(nil), c.envelopes...)
}

// Count returns the number of captured envelopes.
func (c *EnvelopeCapture) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.envelopes)
}

// Last returns the most recent envelope, if any.
func (c *EnvelopeCapture) Last() (protocol.Envelope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.envelopes) == 0 {
		return protocol.Envelope{}, false
	}
	return c.envelopes[len(c.envelopes)-1], true
}

// Reply describes what a ScriptedWorker answers with.
// A zero Kind means the worker stays silent.
type Reply struct {
	Kind    protocol.Kind
	Payload protocol.Payload
	Delay   time.Duration
}

// ScriptedWorker answers task requests with a canned reply computed by Script.
type ScriptedWorker struct {
	Identity string
	Sender   bus.Sender
	Script   func(env protocol.Envelope) Reply

	calls atomic.Int32
}

// ID implements bus.Worker.
func (w *ScriptedWorker) ID() string {
	return w.Identity
}

// OnEnvelope implements bus.Worker. Delays ignore ctx, so a delayed reply
// can land after the step deadline.
func (w *ScriptedWorker) OnEnvelope(ctx context.Context, env protocol.Envelope) error {
	if env.Kind != protocol.KindTaskRequest {
		return nil
	}
	w.calls.Add(1)

	r := w.Script(env)
	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}
	if r.Kind == "" {
		return nil
	}

	reply, err := env.Reply(r.Kind, r.Payload)
	if err != nil {
		return err
	}
	w.Sender.Send(context.WithoutCancel(ctx), reply)
	return nil
}

// Calls returns how many task requests the worker received.
func (w *ScriptedWorker) Calls() int {
	return int(w.calls.Load())
}

// Fixed returns a script always answering with r.
func Fixed(r Reply) func(protocol.Envelope) Reply {
	return func(protocol.Envelope) Reply { return r }
}
