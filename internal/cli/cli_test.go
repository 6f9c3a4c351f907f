// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/noldarim/ragbus/internal/app"
	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/noldarim/ragbus/internal/server"
	"github.com/noldarim/ragbus/test/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Provider = "extractive"
	cfg.Workflow = testutil.FastWorkflow()
	cfg.Server.UploadDir = t.TempDir()

	a, err := app.New(context.Background(), cfg, app.WithTap(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	ts := httptest.NewServer(server.New(&cfg.Server, a.Coordinator, a.Router, nil).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Run(args, &out)
	return out.String(), err
}

func TestIngestAndAsk(t *testing.T) {
	url := startServer(t)
	path := testutil.WriteFile(t, "secret.txt", testutil.SecretDocument)

	out, err := run(t, "ingest", "-server", url, path)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested secret.txt: 1 chunks (success)")

	out, err = run(t, "ask", "-server", url, "-show-context", "What", "is", "the", "secret", "code?")
	require.NoError(t, err)
	assert.Contains(t, out, "ALPHA-BETA-GAMMA")
	assert.Contains(t, out, "── Context ──")
	assert.Contains(t, out, "Trace: ")
}

func TestTraceFormats(t *testing.T) {
	url := startServer(t)
	client := NewClient(url, 5*time.Second)
	result, err := client.Ask(context.Background(), "revenue")
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "trace", "-server", url, "-correlation-id", result.CorrelationID, "-o", "json")
		require.NoError(t, err)

		var envs []protocol.Envelope
		require.NoError(t, json.Unmarshal([]byte(out), &envs))
		require.Len(t, envs, 4)
		testutil.AssertCorrelated(t, envs, result.CorrelationID)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := run(t, "trace", "-server", url, "-correlation-id", result.CorrelationID, "-o", "yaml")
		require.NoError(t, err)

		var docs []map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(out), &docs))
		require.Len(t, docs, 4)
		assert.Equal(t, "TASK_REQUEST", docs[0]["kind"])
		assert.Equal(t, "CONTEXT_RESPONSE", docs[1]["kind"])
		assert.Equal(t, result.CorrelationID, docs[3]["correlation_id"])
	})

	t.Run("table", func(t *testing.T) {
		out, err := run(t, "trace", "-server", url)
		require.NoError(t, err)
		assert.Contains(t, out, "RECEIVER")
		assert.Contains(t, out, protocol.LLMResponseAgent)
		assert.Contains(t, out, "4 envelopes across 1 workflows")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := run(t, "trace", "-server", url, "-o", "xml")
		require.Error(t, err)
	})
}

func TestTraceTable_Empty(t *testing.T) {
	var out bytes.Buffer
	writeTraceTable(&out, nil)
	assert.Equal(t, "No envelopes routed.\n", out.String())
}

func TestAPIErrorsSurface(t *testing.T) {
	url := startServer(t)
	path := testutil.WriteFile(t, "bundle.zip", "binary")

	_, err := run(t, "ingest", "-server", url, path)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "Unsupported file format: .zip", apiErr.Message)
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL+"/", time.Second).Ask(context.Background(), "q")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestRuns_Empty(t *testing.T) {
	url := startServer(t)
	out, err := run(t, "runs", "-server", url)
	require.NoError(t, err)
	assert.Equal(t, "No workflows in flight.\n", out)
}

func TestUsageAndArguments(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "ragctl version "+appVersion+"\n", out)

	out, err = run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Commands:")

	_, err = run(t, "frobnicate")
	require.Error(t, err)

	_, err = run(t, "ingest", "-server", "http://127.0.0.1:1")
	require.ErrorContains(t, err, "exactly one file required")

	_, err = run(t, "ask", "-server", "http://127.0.0.1:1", "  ")
	require.ErrorContains(t, err, "query required")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate(strings.Repeat("abcdefghij", 3), 10))
}
