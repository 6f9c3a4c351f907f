// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package extract turns uploaded files into plain text, one Extractor per
// file extension.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedFormat is returned for extensions without a registered extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Extractor reads the file at path and returns its text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, path string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// UnsupportedFormatError names the rejected extension. It matches ErrUnsupportedFormat.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("Unsupported file format: %s", e.Ext)
}

func (e *UnsupportedFormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// Registry dispatches on the lower-cased extension of the file name.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the built-in formats: .txt, .md,
// .markdown, .csv, .pdf, .docx, .pptx, .json, .yaml and .yml.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(ExtractorFunc(readPlain), ".txt", ".md", ".markdown")
	r.Register(ExtractorFunc(readCSV), ".csv")
	r.Register(ExtractorFunc(readPDF), ".pdf")
	r.Register(ExtractorFunc(readDOCX), ".docx")
	r.Register(ExtractorFunc(readPPTX), ".pptx")
	r.Register(ExtractorFunc(readJSON), ".json")
	r.Register(ExtractorFunc(readYAML), ".yaml", ".yml")
	return r
}

// Register binds e to each extension, replacing earlier bindings.
func (r *Registry) Register(e Extractor, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		r.extractors[normalizeExt(ext)] = e
	}
}

// Supported lists the registered extensions in order.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads path with the extractor chosen by name's extension.
// name is the user-facing file name; path may be a temp file without one.
func (r *Registry) Extract(ctx context.Context, path, name string) (string, error) {
	ext := normalizeExt(filepath.Ext(name))

	r.mu.RLock()
	e, ok := r.extractors[ext]
	r.mu.RUnlock()
	if !ok {
		return "", &UnsupportedFormatError{Ext: ext}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.Extract(ctx, path)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func readPlain(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}
