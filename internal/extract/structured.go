// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package extract

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// readCSV renders the table with padded columns and a leading row index,
// so each row reads as one line of text.
func readCSV(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	header, rows := records[0], records[1:]
	indexWidth := len(strconv.Itoa(max(len(rows)-1, 0)))
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], utf8.RuneCountInString(cell))
			}
		}
	}

	var b strings.Builder
	writeRow := func(index string, cells []string) {
		b.WriteString(pad(index, indexWidth))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString("  ")
			b.WriteString(pad(cell, widths[i]))
		}
		b.WriteString("\n")
	}

	writeRow("", header)
	for i, row := range rows {
		writeRow(strconv.Itoa(i), row)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

func readJSON(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse json: %w", err)
	}
	return flatten(doc), nil
}

func readYAML(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse yaml: %w", err)
	}
	return flatten(doc), nil
}

// flatten renders a decoded document as "path: value" lines with keys sorted.
func flatten(doc any) string {
	var lines []string
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch node := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(node))
			for k := range node {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(join(prefix, k), node[k])
			}
		case []any:
			for i, item := range node {
				walk(fmt.Sprintf("%s[%d]", prefix, i), item)
			}
		default:
			if prefix == "" {
				lines = append(lines, fmt.Sprint(node))
				return
			}
			lines = append(lines, fmt.Sprintf("%s: %v", prefix, node))
		}
	}
	walk("", doc)
	return strings.Join(lines, "\n")
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
