// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"testing"

	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

// AssertKinds verifies the kinds of envs, in order.
func AssertKinds(t *testing.T, envs []protocol.Envelope, expected ...protocol.Kind) {
	t.Helper()
	got := lo.Map(envs, func(env protocol.Envelope, _ int) protocol.Kind { return env.Kind })
	assert.Equal(t, expected, got, "envelope kinds mismatch")
}

// AssertCorrelated verifies that every envelope carries correlationID.
func AssertCorrelated(t *testing.T, envs []protocol.Envelope, correlationID string) {
	t.Helper()
	for _, env := range envs {
		assert.Equal(t, correlationID, env.CorrelationID, "envelope %s has foreign correlation id", env.ID)
	}
}

// AssertReplyTo verifies that reply answers request.
func AssertReplyTo(t *testing.T, request, reply protocol.Envelope, kind protocol.Kind) {
	t.Helper()
	assert.Equal(t, request.Receiver, reply.Sender, "reply sender mismatch")
	assert.Equal(t, request.Sender, reply.Receiver, "reply receiver mismatch")
	assert.Equal(t, request.CorrelationID, reply.CorrelationID, "reply correlation id mismatch")
	assert.Equal(t, kind, reply.Kind, "reply kind mismatch")
}
