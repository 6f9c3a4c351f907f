// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/stretchr/testify/require"
)

// SecretDocument is a small document with two facts a query can target.
const SecretDocument = "The secret code is ALPHA-BETA-GAMMA. The projected revenue for Q4 is $5M."

// NewEnvelope builds an envelope or fails the test.
func NewEnvelope(t *testing.T, sender, receiver string, kind protocol.Kind, payload protocol.Payload, correlationID string) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(sender, receiver, kind, payload, correlationID)
	require.NoError(t, err)
	return env
}

// TaskRequest builds a coordinator task request to receiver.
func TaskRequest(t *testing.T, receiver string, payload protocol.Payload, correlationID string) protocol.Envelope {
	t.Helper()
	return NewEnvelope(t, protocol.CoordinatorAgent, receiver, protocol.KindTaskRequest, payload, correlationID)
}

// WriteFile writes content under t.TempDir() and returns the full path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
