// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app assembles the router, the workers and the coordinator into one
// application context, built once at process start.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/noldarim/ragbus/internal/agents"
	"github.com/noldarim/ragbus/internal/bus"
	"github.com/noldarim/ragbus/internal/chunk"
	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/embedding"
	"github.com/noldarim/ragbus/internal/extract"
	"github.com/noldarim/ragbus/internal/llm"
	"github.com/noldarim/ragbus/internal/logger"
	"github.com/noldarim/ragbus/internal/orchestrator"
	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/noldarim/ragbus/internal/telemetry"
	"github.com/noldarim/ragbus/internal/vectorstore"

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

const defaultTapBuffer = 256

// App owns every long-lived component of the process.
type App struct {
	Config      *config.AppConfig
	Router      *bus.Router
	Coordinator *orchestrator.Coordinator
	Store       vectorstore.Store
	Extractors  *extract.Registry

	tap     chan protocol.Envelope
	closers []func(context.Context) error
}

type options struct {
	generator llm.Generator
	store     vectorstore.Store
	tapBuffer int
}

// Option customises New.
type Option func(*options)

// WithGenerator replaces the configured answer generator.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithStore replaces the configured vector store. The caller keeps ownership.
func WithStore(s vectorstore.Store) Option {
	return func(o *options) { o.store = s }
}

// WithTap mirrors routed envelopes onto a channel of the given capacity,
// read through Tap. Zero disables the tap.
func WithTap(buffer int) Option {
	return func(o *options) { o.tapBuffer = buffer }
}

// New builds the application from cfg.
func New(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	o := options{tapBuffer: defaultTapBuffer}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Extractors: extract.NewRegistry()}

	shutdown, err := telemetry.Setup(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	if err := a.initStore(cfg, o.store); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	generator := o.generator
	if generator == nil {
		generator, err = newGenerator(&cfg.LLM)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}

	splitter, err := chunk.New(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	var routerOpts []bus.Option
	if o.tapBuffer > 0 {
		a.tap = make(chan protocol.Envelope, o.tapBuffer)
		routerOpts = append(routerOpts, bus.WithTap(a.tap))
	}
	a.Router = bus.NewRouter(routerOpts...)
	a.Coordinator = orchestrator.New(a.Router, orchestrator.OptionsFromConfig(&cfg.Workflow))

	a.Router.RegisterWorker(a.Coordinator)
	a.Router.RegisterWorker(agents.NewIngestionAgent(a.Router, a.Extractors, splitter))
	a.Router.RegisterWorker(agents.NewRetrievalAgent(a.Router, a.Store))
	a.Router.RegisterWorker(agents.NewLLMResponseAgent(a.Router, generator))

	getLog().Info().
		Str("store", cfg.Store.Driver).
		Str("embedding", cfg.Embedding.Provider).
		Str("llm", cfg.LLM.Provider).
		Msg("Application assembled")
	return a, nil
}

func (a *App) initStore(cfg *config.AppConfig, injected vectorstore.Store) error {
	if injected != nil {
		a.Store = injected
		return nil
	}

	embedder, release, err := embedding.New(&cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		release()
		return nil
	})

	store, err := vectorstore.New(&cfg.Store, embedder)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	return nil
}

// newGenerator falls back to the offline generator when a hosted provider
// has no API key, so a fresh checkout still answers questions.
func newGenerator(cfg *config.LLMConfig) (llm.Generator, error) {
	if cfg.Provider != "extractive" && cfg.APIKey == "" {
		getLog().Warn().
			Str("provider", cfg.Provider).
			Msg("No LLM API key configured, answering with the extractive generator")
		return llm.NewExtractive(), nil
	}
	return llm.New(cfg)
}

// Tap returns the live envelope stream, nil when disabled.
func (a *App) Tap() <-chan protocol.Envelope {
	if a.tap == nil {
		return nil
	}
	return a.tap
}

// Close releases components in reverse construction order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
