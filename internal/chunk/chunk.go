// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chunk splits extracted text into overlapping character windows.
package chunk

import "fmt"

const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// Splitter cuts text into windows of Size characters, a new window starting
// every Size-Overlap characters. The last windows may be shorter.
type Splitter struct {
	Size    int
	Overlap int
}

// New returns a splitter, rejecting an overlap that would stall it.
func New(size, overlap int) (Splitter, error) {
	if size <= 0 {
		return Splitter{}, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Splitter{}, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return Splitter{Size: size, Overlap: overlap}, nil
}

// Default returns the 500/50 splitter.
func Default() Splitter {
	return Splitter{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Split returns the windows of text. Empty text yields no chunks.
// Positions count runes, so multi-byte characters are never cut.
func (s Splitter) Split(text string) []string {
	runes := []rune(text)
	step := s.Size - s.Overlap
	if len(runes) == 0 || step <= 0 {
		return nil
	}

	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.Size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
