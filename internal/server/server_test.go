// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/noldarim/ragbus/internal/app"
	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/orchestrator"
	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/noldarim/ragbus/test/testutil"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app       *app.App
	server    *Server
	uploadDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Provider = "extractive"
	cfg.Workflow = testutil.FastWorkflow()
	cfg.Server.UploadDir = t.TempDir()

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	return &fixture{
		app:       a,
		server:    New(&cfg.Server, a.Coordinator, a.Router, a.Tap()),
		uploadDir: cfg.Server.UploadDir,
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func chatRequest(query string) *http.Request {
	body, _ := json.Marshal(ChatRequest{Query: query})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestUpload_ThenChat(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, uploadRequest(t, "secret.txt", testutil.SecretDocument))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	upload := decode[UploadResponse](t, rec)
	assert.Equal(t, "success", upload.Status)
	require.NotNil(t, upload.Result)
	assert.Equal(t, "secret.txt", upload.Result.File)
	assert.Equal(t, 1, upload.Result.ChunksCount)

	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged upload must be removed")

	rec = f.do(t, chatRequest("revenue"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	answer := decode[map[string]string](t, rec)
	assert.Contains(t, answer["answer"], "$5M")
	assert.Contains(t, answer["context"], "Source: secret.txt")
	assert.NotEmpty(t, answer["trace_id"])
}

func TestUpload_Errors(t *testing.T) {
	f := newFixture(t)

	t.Run("no file field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
		rec := f.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported format", func(t *testing.T) {
		rec := f.do(t, uploadRequest(t, "bundle.zip", "binary"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Unsupported file format: .zip", decode[map[string]string](t, rec)["error"])
	})
}

func TestUpload_TooLarge(t *testing.T) {
	uploadDir := t.TempDir()
	s := New(&config.ServerConfig{MaxUploadMB: 1, UploadDir: uploadDir}, stubWorkflows{}, emptyTrace{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "big.txt", strings.Repeat("x", 2<<20)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Upload exceeds 1048576 bytes", decode[map[string]string](t, rec)["error"])

	entries, err := os.ReadDir(uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChat_BadRequests(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, f.do(t, req).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, chatRequest("   ")).Code)
}

func TestChat_WorkflowTimeout(t *testing.T) {
	f := newFixture(t)
	f.app.Router.RegisterWorker(&testutil.ScriptedWorker{
		Identity: protocol.RetrievalAgent,
		Sender:   f.app.Router,
		Script:   testutil.Fixed(testutil.Reply{}),
	})

	rec := f.do(t, chatRequest("revenue"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Retrieval timed out", decode[map[string]string](t, rec)["error"])
}

func TestTrace(t *testing.T) {
	f := newFixture(t)

	first := f.do(t, chatRequest("one"))
	require.Equal(t, http.StatusOK, first.Code)
	traceID := decode[map[string]string](t, first)["trace_id"]
	require.Equal(t, http.StatusOK, f.do(t, chatRequest("two")).Code)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/trace", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[TraceResponse](t, rec)
	assert.Equal(t, 8, all.Count)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/trace?correlation_id="+traceID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[TraceResponse](t, rec)
	assert.Equal(t, traceID, one.CorrelationID)
	require.Len(t, one.Envelopes, 4)
	testutil.AssertCorrelated(t, one.Envelopes, traceID)
	testutil.AssertKinds(t, one.Envelopes,
		protocol.KindTaskRequest, protocol.KindContextResponse,
		protocol.KindTaskRequest, protocol.KindTaskResult)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/trace?correlation_id=missing", nil))
	assert.JSONEq(t, `{"correlation_id":"missing","count":0,"envelopes":[]}`, rec.Body.String())
}

type stubWorkflows struct {
	runs []orchestrator.RunSnapshot
	err  error
}

func (s stubWorkflows) SubmitQuery(context.Context, string) (*orchestrator.QueryResult, error) {
	return nil, s.err
}

func (s stubWorkflows) SubmitIngestion(context.Context, string, string) (*orchestrator.IngestionResult, error) {
	return nil, s.err
}

func (s stubWorkflows) Runs() []orchestrator.RunSnapshot { return s.runs }

func (s stubWorkflows) Run(id string) (orchestrator.RunSnapshot, bool) {
	for _, r := range s.runs {
		if r.CorrelationID == id {
			return r, true
		}
	}
	return orchestrator.RunSnapshot{}, false
}

type emptyTrace struct{}

func (emptyTrace) Trace() []protocol.Envelope          { return nil }
func (emptyTrace) TraceFor(string) []protocol.Envelope { return nil }

func TestRuns(t *testing.T) {
	runs := []orchestrator.RunSnapshot{{
		CorrelationID: "c-1",
		Workflow:      orchestrator.WorkflowQuery,
		State:         orchestrator.StateAwaitingStep2,
	}}
	s := New(&config.ServerConfig{}, stubWorkflows{runs: runs}, emptyTrace{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"correlation_id":"c-1"`)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/c-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/c-2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMiddleware(t *testing.T) {
	s := New(&config.ServerConfig{AllowedOrigins: []string{"http://ui.local"}}, stubWorkflows{err: errors.New("boom")}, emptyTrace{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://ui.local")
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://ui.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://evil.local")
	req.Header.Set("X-Request-ID", "bad id\n")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEqual(t, "bad id\n", rec.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestWebSocket_StreamsFilteredEnvelopes(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.server.broadcaster.Run(ctx)

	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?worker=" + protocol.LLMResponseAgent
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	testutil.Eventually(t, func() bool { return f.server.broadcaster.clients.Len() == 1 }, "client registered")

	rec := f.do(t, chatRequest("anything"))
	require.Equal(t, http.StatusOK, rec.Code)
	traceID := decode[map[string]string](t, rec)["trace_id"]

	var got []protocol.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for len(got) < 2 {
		var msg wsOutMessage
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "envelope", msg.Type)
		got = append(got, *msg.Envelope)
	}

	testutil.AssertCorrelated(t, got, traceID)
	assert.Equal(t, protocol.LLMResponseAgent, got[0].Receiver)
	assert.Equal(t, protocol.LLMResponseAgent, got[1].Sender)
}

func TestWebSocket_RejectsUnknownMessage(t *testing.T) {
	s := New(&config.ServerConfig{}, stubWorkflows{}, emptyTrace{}, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg wsOutMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, errUnknownMessage.Error(), msg.Message)
}

func TestSubscriptionFilter(t *testing.T) {
	env := protocol.Envelope{CorrelationID: "c", Sender: protocol.CoordinatorAgent, Receiver: protocol.RetrievalAgent}

	assert.True(t, SubscriptionFilter{}.matches(env))
	assert.True(t, SubscriptionFilter{CorrelationID: "c"}.matches(env))
	assert.True(t, SubscriptionFilter{Worker: protocol.CoordinatorAgent}.matches(env))
	assert.True(t, SubscriptionFilter{Worker: protocol.RetrievalAgent, CorrelationID: "c"}.matches(env))
	assert.False(t, SubscriptionFilter{CorrelationID: "other"}.matches(env))
	assert.False(t, SubscriptionFilter{Worker: protocol.IngestionAgent}.matches(env))
}
