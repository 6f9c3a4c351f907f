// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// readPDF returns the plain text of every page, one page per line block.
func readPDF(ctx context.Context, path string) (text string, err error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	// The reader panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("malformed pdf %s: %v", filepath.Base(path), rec)
		}
	}()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		// nil makes the reader resolve this page's own font resources.
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d of %s: %w", i, filepath.Base(path), err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}
