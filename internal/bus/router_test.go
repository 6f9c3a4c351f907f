// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen []protocol.Envelope
}

func (r *recorder) handle(_ context.Context, env protocol.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, env)
	return nil
}

func (r *recorder) envelopes() []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Envelope(nil), r.seen...)
}

func mustEnvelope(t *testing.T, receiver string, corr string) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.CoordinatorAgent, receiver, protocol.KindTaskRequest,
		protocol.RetrieveContextRequest{Query: "q", NResults: 3}, corr)
	require.NoError(t, err)
	return env
}

func TestRouter_DeliversToRegisteredHandler(t *testing.T) {
	r := NewRouter()
	rec := &recorder{}
	r.Register(protocol.RetrievalAgent, rec.handle)

	env := mustEnvelope(t, protocol.RetrievalAgent, "corr-1")
	r.Send(context.Background(), env)

	got := rec.envelopes()
	require.Len(t, got, 1)
	assert.Equal(t, env.ID, got[0].ID)
	assert.True(t, r.Registered(protocol.RetrievalAgent))
}

func TestRouter_UnknownReceiverIsDropped(t *testing.T) {
	r := NewRouter()
	env := mustEnvelope(t, "NobodyAgent", "corr-1")

	assert.NotPanics(t, func() { r.Send(context.Background(), env) })
	assert.Len(t, r.Trace(), 1)
}

func TestRouter_HandlerFailureIsContained(t *testing.T) {
	r := NewRouter()
	r.Register(protocol.RetrievalAgent, func(context.Context, protocol.Envelope) error {
		return errors.New("index unavailable")
	})
	r.Register(protocol.IngestionAgent, func(context.Context, protocol.Envelope) error {
		panic("boom")
	})
	rec := &recorder{}
	r.Register(protocol.LLMResponseAgent, rec.handle)

	assert.NotPanics(t, func() {
		r.Send(context.Background(), mustEnvelope(t, protocol.RetrievalAgent, "a"))
		r.Send(context.Background(), mustEnvelope(t, protocol.IngestionAgent, "b"))
	})

	r.Send(context.Background(), mustEnvelope(t, protocol.LLMResponseAgent, "c"))
	assert.Len(t, rec.envelopes(), 1, "router keeps delivering after failures")
}

func TestRouter_ReRegistrationReplacesHandler(t *testing.T) {
	r := NewRouter()
	first, second := &recorder{}, &recorder{}
	r.Register(protocol.RetrievalAgent, first.handle)
	r.Register(protocol.RetrievalAgent, second.handle)

	r.Send(context.Background(), mustEnvelope(t, protocol.RetrievalAgent, "corr"))

	assert.Empty(t, first.envelopes())
	assert.Len(t, second.envelopes(), 1)
}

func TestRouter_IgnoresInvalidRegistration(t *testing.T) {
	r := NewRouter()
	r.Register("", (&recorder{}).handle)
	r.Register(protocol.RetrievalAgent, nil)

	assert.False(t, r.Registered(""))
	assert.False(t, r.Registered(protocol.RetrievalAgent))
}

type echoWorker struct {
	router *Router
}

func (w *echoWorker) ID() string { return protocol.RetrievalAgent }

func (w *echoWorker) OnEnvelope(ctx context.Context, env protocol.Envelope) error {
	reply, err := env.Reply(protocol.KindContextResponse, protocol.ContextResult{Context: "ctx"})
	if err != nil {
		return err
	}
	w.router.Send(ctx, reply)
	return nil
}

func TestRouter_TraceKeepsRoutingOrder(t *testing.T) {
	r := NewRouter()
	r.RegisterWorker(&echoWorker{router: r})
	rec := &recorder{}
	r.Register(protocol.CoordinatorAgent, rec.handle)

	r.Send(context.Background(), mustEnvelope(t, protocol.RetrievalAgent, "corr-a"))
	r.Send(context.Background(), mustEnvelope(t, protocol.RetrievalAgent, "corr-b"))

	trace := r.Trace()
	require.Len(t, trace, 4)
	assert.Equal(t, protocol.KindTaskRequest, trace[0].Kind)
	assert.Equal(t, protocol.KindContextResponse, trace[1].Kind)

	forA := r.TraceFor("corr-a")
	require.Len(t, forA, 2)
	for _, env := range forA {
		assert.Equal(t, "corr-a", env.CorrelationID)
	}
	assert.Len(t, rec.envelopes(), 2)
}

func TestRouter_TraceSnapshotIsDetached(t *testing.T) {
	r := NewRouter()
	r.Send(context.Background(), mustEnvelope(t, protocol.RetrievalAgent, "corr"))

	snapshot := r.Trace()
	snapshot[0].Receiver = "mutated"

	assert.Equal(t, protocol.RetrievalAgent, r.Trace()[0].Receiver)
}

func TestRouter_TapIsNonBlocking(t *testing.T) {
	tap := make(chan protocol.Envelope, 1)
	r := NewRouter(WithTap(tap))

	r.Send(context.Background(), mustEnvelope(t, protocol.RetrievalAgent, "one"))
	r.Send(context.Background(), mustEnvelope(t, protocol.RetrievalAgent, "two"))

	got := <-tap
	assert.Equal(t, "one", got.CorrelationID)
	assert.Len(t, r.Trace(), 2)
}

func TestRouter_ConcurrentSends(t *testing.T) {
	r := NewRouter()
	rec := &recorder{}
	r.Register(protocol.RetrievalAgent, rec.handle)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Send(context.Background(), mustEnvelope(t, protocol.RetrievalAgent, ""))
		}()
	}
	wg.Wait()

	assert.Len(t, rec.envelopes(), 50)
	assert.Len(t, r.Trace(), 50)
}

func TestHandlerError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := error(&HandlerError{Receiver: "X", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, (&HandlerError{Receiver: "X", Panic: "p"}).Error(), "panicked")
}

func TestPreviewPayload_TruncatesOnRuneBoundary(t *testing.T) {
	long := previewPayload(protocol.ContextResult{Context: strings.Repeat("é", 3*payloadPreviewLen)})
	assert.True(t, utf8.ValidString(long))
	assert.True(t, strings.HasSuffix(long, "..."))
	assert.Equal(t, payloadPreviewLen+3, utf8.RuneCountInString(long))

	short := previewPayload(protocol.ErrorPayload{Error: "boom"})
	assert.Equal(t, "{Error:boom}", short)
	assert.Empty(t, previewPayload(nil))
}
