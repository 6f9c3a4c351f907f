// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// maxPartSize bounds how much of one decompressed XML part is read.
const maxPartSize = 64 << 20

const (
	docxBody     = "word/document.xml"
	pptxSlideDir = "ppt/slides/"
)

// readDOCX returns the document's paragraphs, one per line.
func readDOCX(ctx context.Context, path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx %s: %w", filepath.Base(path), err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name == docxBody {
			return paragraphs(ctx, f)
		}
	}
	return "", fmt.Errorf("invalid docx %s: missing %s", filepath.Base(path), docxBody)
}

// readPPTX returns the text of every slide in slide order, one paragraph
// per line.
func readPPTX(ctx context.Context, path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pptx %s: %w", filepath.Base(path), err)
	}
	defer zr.Close()

	type slide struct {
		n    int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		n, ok := slideNumber(f.Name)
		if ok {
			slides = append(slides, slide{n: n, file: f})
		}
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("invalid pptx %s: no slides", filepath.Base(path))
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var b strings.Builder
	for _, s := range slides {
		text, err := paragraphs(ctx, s.file)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// slideNumber parses ppt/slides/slideN.xml; layouts, masters and _rels
// entries are rejected.
func slideNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, pptxSlideDir+"slide")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".xml")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

// paragraphs streams one OOXML part and collects the text runs (<w:t> in
// WordprocessingML, <a:t> in DrawingML), ending a line at each paragraph.
func paragraphs(ctx context.Context, f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxPartSize))
	var (
		b      strings.Builder
		line   strings.Builder
		inText bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", f.Name, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteString("\t")
			case "br", "cr":
				line.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString(line.String())
				b.WriteString("\n")
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	b.WriteString(line.String())
	return b.String(), nil
}
