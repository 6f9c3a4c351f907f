// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bus routes envelopes between workers living in the same process.
//
// Delivery is synchronous and best-effort: Send returns once the receiver's
// handler has finished, whatever the outcome. A failing handler or an unknown
// receiver is logged and never reported to the sender.
package bus

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/noldarim/ragbus/internal/logger"
	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/noldarim/ragbus/internal/telemetry"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetBusLogger()
		log = &l
	})
	return log
}

const payloadPreviewLen = 100

// Handler receives the envelopes addressed to one worker identity.
type Handler func(ctx context.Context, env protocol.Envelope) error

// Sender emits envelopes onto the bus. *Router implements it.
type Sender interface {
	Send(ctx context.Context, env protocol.Envelope)
}

// Worker is a named role reacting to envelopes addressed to it.
type Worker interface {
	ID() string
	OnEnvelope(ctx context.Context, env protocol.Envelope) error
}

// Router maps worker identities to handlers and delivers envelopes to them.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	trace    *TraceLog
	tap      chan<- protocol.Envelope
	tracer   trace.Tracer
}

// Option configures a Router.
type Option func(*Router)

// WithTap mirrors every routed envelope onto ch without blocking. Envelopes
// are dropped when ch is full.
func WithTap(ch chan<- protocol.Envelope) Option {
	return func(r *Router) {
		r.tap = ch
	}
}

// WithTracer overrides the tracer used for delivery spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		r.tracer = t
	}
}

// NewRouter creates an empty router.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		handlers: make(map[string]Handler),
		trace:    NewTraceLog(),
		tracer:   telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds handler to identity. Registering an identity twice replaces
// the previous binding.
func (r *Router) Register(identity string, handler Handler) {
	if identity == "" || handler == nil {
		getLog().Error().Str("identity", identity).Msg("Refusing to register empty identity or nil handler")
		return
	}

	r.mu.Lock()
	_, replaced := r.handlers[identity]
	r.handlers[identity] = handler
	r.mu.Unlock()

	if replaced {
		getLog().Warn().Str("identity", identity).Msg("Handler replaced for already registered worker")
		return
	}
	getLog().Info().Str("identity", identity).Msg("Registered worker")
}

// RegisterWorker registers w.OnEnvelope under w.ID().
func (r *Router) RegisterWorker(w Worker) {
	r.Register(w.ID(), w.OnEnvelope)
}

// Registered reports whether identity has a handler.
func (r *Router) Registered(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[identity]
	return ok
}

// Send records env in the trace log and delivers it to its receiver.
// It never fails from the sender's point of view.
func (r *Router) Send(ctx context.Context, env protocol.Envelope) {
	r.trace.Append(env)
	r.publish(env)

	getLog().Info().
		Str("sender", env.Sender).
		Str("receiver", env.Receiver).
		Str("kind", string(env.Kind)).
		Str("correlation_id", env.CorrelationID).
		Str("payload", previewPayload(env.Payload)).
		Msg("Routing envelope")

	r.mu.RLock()
	handler, ok := r.handlers[env.Receiver]
	r.mu.RUnlock()

	if !ok {
		getLog().Warn().
			Str("receiver", env.Receiver).
			Str("correlation_id", env.CorrelationID).
			Err(&UnroutableError{Receiver: env.Receiver}).
			Msg("Dropping envelope for unregistered receiver")
		return
	}

	ctx, span := r.tracer.Start(ctx, "bus.deliver",
		trace.WithAttributes(
			attribute.String("bus.sender", env.Sender),
			attribute.String("bus.receiver", env.Receiver),
			attribute.String("bus.kind", string(env.Kind)),
			attribute.String("bus.correlation_id", env.CorrelationID),
		),
	)
	defer span.End()

	if err := deliver(ctx, handler, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		getLog().Error().
			Err(err).
			Str("receiver", env.Receiver).
			Str("correlation_id", env.CorrelationID).
			Msg("Error delivering envelope")
	}
}

// deliver runs handler, converting both returned errors and panics into a HandlerError.
func deliver(ctx context.Context, handler Handler, env protocol.Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &HandlerError{Receiver: env.Receiver, Panic: rec}
		}
	}()
	if herr := handler(ctx, env); herr != nil {
		return &HandlerError{Receiver: env.Receiver, Err: herr}
	}
	return nil
}

func (r *Router) publish(env protocol.Envelope) {
	if r.tap == nil {
		return
	}
	select {
	case r.tap <- env:
	default:
		getLog().Warn().Str("correlation_id", env.CorrelationID).Msg("Trace tap full, dropping envelope copy")
	}
}

// Trace returns a copy of every envelope routed so far, in routing order.
func (r *Router) Trace() []protocol.Envelope {
	return r.trace.Entries()
}

// TraceFor returns the routed envelopes belonging to one correlation id.
func (r *Router) TraceFor(correlationID string) []protocol.Envelope {
	return r.trace.For(correlationID)
}

func previewPayload(p protocol.Payload) string {
	if p == nil {
		return ""
	}
	s := fmt.Sprintf("%+v", p)
	if utf8.RuneCountInString(s) <= payloadPreviewLen {
		return s
	}
	return string([]rune(s)[:payloadPreviewLen]) + "..."
}
