// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/noldarim/ragbus/internal/orchestrator"
	"github.com/noldarim/ragbus/internal/protocol"

	"github.com/go-chi/chi/v5"
)

var (
	errTooManyFilters = errors.New("too many subscription filters")
	errUnknownMessage = errors.New("unknown message type")
)

// Workflows runs ingestion and query workflows.
type Workflows interface {
	SubmitQuery(ctx context.Context, text string) (*orchestrator.QueryResult, error)
	SubmitIngestion(ctx context.Context, filePath, fileName string) (*orchestrator.IngestionResult, error)
	Runs() []orchestrator.RunSnapshot
	Run(correlationID string) (orchestrator.RunSnapshot, bool)
}

// TraceSource exposes the router's envelope history.
type TraceSource interface {
	Trace() []protocol.Envelope
	TraceFor(correlationID string) []protocol.Envelope
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	workflows Workflows
	traces    TraceSource
	clients   *ClientRegistry
	uploadDir string
}

func NewHandlers(workflows Workflows, traces TraceSource, clients *ClientRegistry, uploadDir string) *Handlers {
	return &Handlers{workflows: workflows, traces: traces, clients: clients, uploadDir: uploadDir}
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query string `json:"query"`
}

// UploadResponse is the body of a successful POST /upload.
type UploadResponse struct {
	Status string                        `json:"status"`
	Result *orchestrator.IngestionResult `json:"result"`
}

// TraceResponse is the body of GET /api/v1/trace.
type TraceResponse struct {
	CorrelationID string              `json:"correlation_id,omitempty"`
	Count         int                 `json:"count"`
	Envelopes     []protocol.Envelope `json:"envelopes"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		getLog().Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"websocket_clients": h.clients.Len(),
	})
}

// Upload handles POST /upload. The file is staged on disk under its original
// extension for the ingestion worker and removed once the workflow returns.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if header.Filename == "" || name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "No filename")
		return
	}

	path, err := h.stage(file, filepath.Ext(name))
	if err != nil {
		getLog().Error().Err(err).Str("file", name).Msg("Failed to stage upload")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			getLog().Warn().Err(err).Str("path", path).Msg("Failed to remove staged upload")
		}
	}()

	result, err := h.workflows.SubmitIngestion(r.Context(), path, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Status: "success", Result: result})
}

func (h *Handlers) stage(src io.Reader, ext string) (string, error) {
	dst, err := os.CreateTemp(h.uploadDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return dst.Name(), nil
}

// Chat handles POST /chat
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := h.workflows.SubmitQuery(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTrace handles GET /api/v1/trace[?correlation_id=]
func (h *Handlers) GetTrace(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("correlation_id")
	envs := h.traces.Trace()
	if id != "" {
		envs = h.traces.TraceFor(id)
	}
	if envs == nil {
		envs = []protocol.Envelope{}
	}
	writeJSON(w, http.StatusOK, TraceResponse{CorrelationID: id, Count: len(envs), Envelopes: envs})
}

// GetRuns handles GET /api/v1/runs
func (h *Handlers) GetRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.workflows.Runs()
	if runs == nil {
		runs = []orchestrator.RunSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun handles GET /api/v1/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.workflows.Run(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
