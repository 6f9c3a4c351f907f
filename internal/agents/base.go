// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agents implements the workers living on the bus: ingestion,
// retrieval and response generation.
//
// Workers only act on TASK_REQUEST envelopes whose task they know. Everything
// else is ignored without a reply. A handled request ends with exactly one
// reply to its sender under the request's correlation id, except embed_chunks
// which is fire-and-forget.
package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/noldarim/ragbus/internal/bus"
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
		l := logger.GetAgentsLogger()
		log = &l
	})
	return log
}

// Base carries a worker's identity and its route onto the bus.
type Base struct {
	id     string
	sender bus.Sender
}

// NewBase binds identity to sender.
func NewBase(identity string, sender bus.Sender) Base {
	return Base{id: identity, sender: sender}
}

// ID implements bus.Worker.
func (b Base) ID() string {
	return b.id
}

// send emits a new envelope from this worker within an existing correlation.
func (b Base) send(ctx context.Context, receiver string, kind protocol.Kind, payload protocol.Payload, correlationID string) error {
	env, err := protocol.NewEnvelope(b.id, receiver, kind, payload, correlationID)
	if err != nil {
		return fmt.Errorf("%s failed to build envelope for %s: %w", b.id, receiver, err)
	}
	b.sender.Send(ctx, env)
	return nil
}

// reply answers req.
func (b Base) reply(ctx context.Context, req protocol.Envelope, kind protocol.Kind, payload protocol.Payload) error {
	return b.send(ctx, req.Sender, kind, payload, req.CorrelationID)
}

// replyError answers req with an ERROR carrying cause's message.
func (b Base) replyError(ctx context.Context, req protocol.Envelope, cause error) error {
	getLog().Warn().
		Err(cause).
		Str("worker", b.id).
		Str("task", string(req.Task())).
		Str("correlation_id", req.CorrelationID).
		Msg("Task failed, replying with error")
	return b.reply(ctx, req, protocol.KindError, protocol.ErrorPayload{Error: cause.Error()})
}

// ignore logs an envelope the worker has no handler for.
func (b Base) ignore(env protocol.Envelope) error {
	getLog().Debug().
		Str("worker", b.id).
		Str("kind", string(env.Kind)).
		Str("task", string(env.Task())).
		Str("correlation_id", env.CorrelationID).
		Msg("Ignoring envelope")
	return nil
}
