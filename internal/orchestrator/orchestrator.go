// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator turns the asynchronous envelope exchange on the bus
// into blocking query and ingestion workflows.
//
// Every workflow gets a fresh correlation id. Each step suspends on that id,
// emits its task request and waits for the first reply carrying the id. An
// ERROR reply or a missed deadline ends the workflow; no step is retried.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/noldarim/ragbus/internal/bus"
	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/correlation"
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
		l := logger.GetOrchestratorLogger()
		log = &l
	})
	return log
}

// Step names double as the prefix of the timeout error message.
const (
	StepRetrieval  = "Retrieval"
	StepGeneration = "LLM response"
	StepIngestion  = "Ingestion"
)

// Options holds the workflow knobs.
type Options struct {
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
	IngestionTimeout  time.Duration
	NResults          int
}

// DefaultOptions returns the stock deadlines: 10s retrieval, 30s generation, 60s ingestion.
func DefaultOptions() Options {
	return Options{
		RetrievalTimeout:  10 * time.Second,
		GenerationTimeout: 30 * time.Second,
		IngestionTimeout:  60 * time.Second,
		NResults:          3,
	}
}

// OptionsFromConfig converts the workflow section of the application config.
func OptionsFromConfig(cfg *config.WorkflowConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.RetrievalTimeout > 0 {
		opts.RetrievalTimeout = cfg.RetrievalTimeout
	}
	if cfg.GenerationTimeout > 0 {
		opts.GenerationTimeout = cfg.GenerationTimeout
	}
	if cfg.IngestionTimeout > 0 {
		opts.IngestionTimeout = cfg.IngestionTimeout
	}
	if cfg.NResults > 0 {
		opts.NResults = cfg.NResults
	}
	return opts
}

// QueryResult is the outcome of a successful query workflow.
type QueryResult struct {
	Answer        string `json:"answer"`
	Context       string `json:"context"`
	CorrelationID string `json:"trace_id"`
}

// IngestionResult is the outcome of a successful ingestion workflow.
type IngestionResult struct {
	Status        string `json:"status"`
	File          string `json:"file"`
	ChunksCount   int    `json:"chunks_count"`
	CorrelationID string `json:"trace_id"`
}

// Coordinator drives workflows and is itself the CoordinatorAgent worker:
// replies addressed to it settle the suspended step.
type Coordinator struct {
	sender bus.Sender
	table  *correlation.Table
	opts   Options
	tracer trace.Tracer

	mu   sync.RWMutex
	runs map[string]*run
}

// New creates a coordinator emitting through sender. Register it on the
// router under ID() so replies reach it.
func New(sender bus.Sender, opts Options) *Coordinator {
	return &Coordinator{
		sender: sender,
		table:  correlation.NewTable(),
		opts:   opts,
		tracer: telemetry.Tracer(),
		runs:   make(map[string]*run),
	}
}

// ID implements bus.Worker.
func (c *Coordinator) ID() string {
	return protocol.CoordinatorAgent
}

// OnEnvelope implements bus.Worker. Replies nobody waits for are dropped.
func (c *Coordinator) OnEnvelope(_ context.Context, env protocol.Envelope) error {
	if !c.table.Resolve(env) {
		getLog().Debug().
			Str("correlation_id", env.CorrelationID).
			Str("sender", env.Sender).
			Str("kind", string(env.Kind)).
			Msg("Dropping late or unsolicited reply")
	}
	return nil
}

// SubmitQuery retrieves context for text and generates an answer from it.
func (c *Coordinator) SubmitQuery(ctx context.Context, text string) (*QueryResult, error) {
	r := c.startRun(WorkflowQuery)
	ctx, span := c.startSpan(ctx, r)
	defer span.End()

	ctxReply, err := c.step(ctx, r, StepRetrieval, protocol.RetrievalAgent,
		protocol.RetrieveContextRequest{Query: text, NResults: c.opts.NResults},
		c.opts.RetrievalTimeout)
	if err != nil {
		return nil, c.fail(r, span, err)
	}
	retrieved, ok := ctxReply.Payload.(protocol.ContextResult)
	if !ok {
		return nil, c.fail(r, span, unexpectedReply(StepRetrieval, ctxReply))
	}

	r.transition(StateAwaitingStep2)

	genReply, err := c.step(ctx, r, StepGeneration, protocol.LLMResponseAgent,
		protocol.GenerateResponseRequest{Query: text, Context: retrieved.Context},
		c.opts.GenerationTimeout)
	if err != nil {
		return nil, c.fail(r, span, err)
	}
	generated, ok := genReply.Payload.(protocol.GenerateResult)
	if !ok {
		return nil, c.fail(r, span, unexpectedReply(StepGeneration, genReply))
	}

	c.finish(r, StateDone, nil)
	span.SetStatus(codes.Ok, "")
	return &QueryResult{
		Answer:        generated.Answer,
		Context:       retrieved.Context,
		CorrelationID: r.correlationID,
	}, nil
}

// SubmitIngestion asks the ingestion worker to index the file at filePath.
// fileName is the user-facing name; its extension selects the extractor.
func (c *Coordinator) SubmitIngestion(ctx context.Context, filePath, fileName string) (*IngestionResult, error) {
	r := c.startRun(WorkflowIngestion)
	ctx, span := c.startSpan(ctx, r)
	defer span.End()

	reply, err := c.step(ctx, r, StepIngestion, protocol.IngestionAgent,
		protocol.IngestFileRequest{FilePath: filePath, FileName: fileName},
		c.opts.IngestionTimeout)
	if err != nil {
		return nil, c.fail(r, span, err)
	}
	result, ok := reply.Payload.(protocol.IngestResult)
	if !ok {
		return nil, c.fail(r, span, unexpectedReply(StepIngestion, reply))
	}

	c.finish(r, StateDone, nil)
	span.SetStatus(codes.Ok, "")
	return &IngestionResult{
		Status:        result.Status,
		File:          result.File,
		ChunksCount:   result.ChunksCount,
		CorrelationID: r.correlationID,
	}, nil
}

// step suspends on the run's correlation id, emits the task request from a
// dispatch goroutine and waits for the reply. The worker sees a context
// bounded by the step deadline.
func (c *Coordinator) step(ctx context.Context, r *run, name, receiver string, payload protocol.Payload, timeout time.Duration) (protocol.Envelope, error) {
	suspension, err := c.table.Suspend(r.correlationID, name, correlation.ExpectSender(receiver))
	if err != nil {
		return protocol.Envelope{}, err
	}

	env, err := protocol.NewEnvelope(protocol.CoordinatorAgent, receiver, protocol.KindTaskRequest, payload, r.correlationID)
	if err != nil {
		suspension.Cancel()
		return protocol.Envelope{}, fmt.Errorf("failed to build %s request: %w", name, err)
	}

	getLog().Debug().
		Str("correlation_id", r.correlationID).
		Str("step", name).
		Str("receiver", receiver).
		Dur("timeout", timeout).
		Msg("Dispatching workflow step")

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	go func() {
		defer cancel()
		c.sender.Send(stepCtx, env)
	}()

	reply, err := suspension.Await(ctx, timeout)
	if err != nil {
		return protocol.Envelope{}, err
	}

	if reply.Kind == protocol.KindError {
		msg := ""
		if p, ok := reply.Payload.(protocol.ErrorPayload); ok {
			msg = p.Error
		}
		return protocol.Envelope{}, &WorkerError{
			CorrelationID: r.correlationID,
			Step:          name,
			Worker:        reply.Sender,
			Message:       msg,
		}
	}
	return reply, nil
}

func (c *Coordinator) startSpan(ctx context.Context, r *run) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "workflow."+string(r.workflow),
		trace.WithAttributes(attribute.String("bus.correlation_id", r.correlationID)))
}

func (c *Coordinator) fail(r *run, span trace.Span, err error) error {
	state := StateFailed
	if isTimeout(err) {
		state = StateTimedOut
	}
	c.finish(r, state, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
