// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the coordinator over HTTP. Uploads and chat
// questions run a workflow per request; the router's tap is fanned out to
// WebSocket clients as a live envelope stream.
package server

import (
	"context"
	"sync"

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
		l := logger.GetAPILogger()
		log = &l
	})
	return log
}

// EnvelopeBroadcaster drains the router tap and hands every envelope to the
// connected WebSocket clients.
type EnvelopeBroadcaster struct {
	tap     <-chan protocol.Envelope
	clients *ClientRegistry
}

// NewEnvelopeBroadcaster creates a broadcaster. A nil tap makes Run wait for
// cancellation only.
func NewEnvelopeBroadcaster(tap <-chan protocol.Envelope, clients *ClientRegistry) *EnvelopeBroadcaster {
	return &EnvelopeBroadcaster{tap: tap, clients: clients}
}

// Run forwards envelopes until the tap closes or ctx is cancelled.
func (b *EnvelopeBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case env, ok := <-b.tap:
			if !ok {
				getLog().Info().Msg("Envelope broadcaster stopped (tap closed)")
				return
			}
			if b.clients != nil {
				b.clients.Broadcast(env)
			}
		case <-ctx.Done():
			getLog().Info().Msg("Envelope broadcaster stopped (context cancelled)")
			return
		}
	}
}
