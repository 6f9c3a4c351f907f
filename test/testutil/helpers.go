// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"testing"
	"time"

	"github.com/noldarim/ragbus/internal/config"
	"github.com/stretchr/testify/require"
)

// FastWorkflow returns workflow settings with short deadlines for tests.
func FastWorkflow() config.WorkflowConfig {
	return config.WorkflowConfig{
		RetrievalTimeout:  200 * time.Millisecond,
		GenerationTimeout: 200 * time.Millisecond,
		IngestionTimeout:  200 * time.Millisecond,
		NResults:          3,
	}
}

// Eventually waits until cond holds, failing the test after a second.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}
