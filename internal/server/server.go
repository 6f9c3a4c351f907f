// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/protocol"

	"github.com/go-chi/chi/v5"
)

const (
	defaultBodyLimit = 1 << 20
	broadcastRetries = 3
)

// Server is the REST + WebSocket API server.
type Server struct {
	httpServer  *http.Server
	broadcaster *EnvelopeBroadcaster
}

// New wires the API server. It does not listen until Run is called.
func New(cfg *config.ServerConfig, workflows Workflows, traces TraceSource, tap <-chan protocol.Envelope) *Server {
	registry := NewClientRegistry()
	handlers := NewHandlers(workflows, traces, registry, cfg.UploadDir)

	uploadLimit := cfg.MaxUploadMB << 20
	if uploadLimit <= 0 {
		uploadLimit = defaultBodyLimit
	}

	r := chi.NewRouter()
	r.Use(Recovery)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(CORS(cfg.AllowedOrigins))

	r.Get("/healthz", handlers.Health)
	r.With(MaxBodySize(uploadLimit)).Post("/upload", handlers.Upload)
	r.With(MaxBodySize(defaultBodyLimit)).Post("/chat", handlers.Chat)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/trace", handlers.GetTrace)
		r.Get("/runs", handlers.GetRuns)
		r.Get("/runs/{id}", handlers.GetRun)
	})

	r.Get("/ws", HandleWebSocket(registry, cfg.AllowedOrigins))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		broadcaster: NewEnvelopeBroadcaster(tap, registry),
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run starts the envelope broadcaster and serves HTTP until Shutdown.
func (s *Server) Run(ctx context.Context) error {
	go s.broadcast(ctx)

	getLog().Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// broadcast keeps the broadcaster alive across panics, up to a retry limit.
func (s *Server) broadcast(ctx context.Context) {
	for attempt := 1; attempt <= broadcastRetries; attempt++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					getLog().Error().Interface("panic", r).Int("attempt", attempt).Msg("Envelope broadcaster panic")
				}
			}()
			s.broadcaster.Run(ctx)
		}()

		if ctx.Err() != nil {
			return
		}
		if attempt < broadcastRetries {
			getLog().Warn().Int("attempt", attempt).Msg("Restarting envelope broadcaster")
			time.Sleep(time.Second)
		}
	}
	getLog().Error().Msg("Envelope broadcaster exhausted retries, live trace stream disabled")
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
