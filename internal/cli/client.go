// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/noldarim/ragbus/internal/orchestrator"
	"github.com/noldarim/ragbus/internal/server"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the ragbus HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL, e.g. http://127.0.0.1:8000.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Ingest uploads the file at path.
func (c *Client) Ingest(ctx context.Context, path string) (*orchestrator.IngestionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp server.UploadResponse
	if err := c.do(ctx, http.MethodPost, "/upload", mw.FormDataContentType(), &body, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Ask runs a query workflow.
func (c *Client) Ask(ctx context.Context, query string) (*orchestrator.QueryResult, error) {
	payload, err := json.Marshal(server.ChatRequest{Query: query})
	if err != nil {
		return nil, err
	}
	var resp orchestrator.QueryResult
	if err := c.do(ctx, http.MethodPost, "/chat", "application/json", bytes.NewReader(payload), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trace fetches routed envelopes, all of them when correlationID is empty.
func (c *Client) Trace(ctx context.Context, correlationID string) (*server.TraceResponse, error) {
	path := "/api/v1/trace"
	if correlationID != "" {
		path += "?correlation_id=" + url.QueryEscape(correlationID)
	}
	var resp server.TraceResponse
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Runs lists workflows still in flight.
func (c *Client) Runs(ctx context.Context) ([]orchestrator.RunSnapshot, error) {
	var resp struct {
		Runs []orchestrator.RunSnapshot `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
