// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// NotFoundAnswer is returned when no sentence of the context matches the question.
const NotFoundAnswer = "The answer is not in the provided context."

// stopwords are ignored when matching question words against sentences.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true, "of": true,
	"for": true, "to": true, "in": true, "on": true, "what": true, "which": true, "who": true,
	"how": true, "and": true, "or": true, "does": true, "do": true, "it": true, "me": true,
}

// Extractive answers offline by quoting the context sentence sharing the
// most words with the question, followed by its source.
type Extractive struct{}

// NewExtractive returns the offline generator.
func NewExtractive() *Extractive {
	return &Extractive{}
}

type passage struct {
	source   string
	sentence string
}

// Generate implements Generator.
func (e *Extractive) Generate(ctx context.Context, query, retrieved string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	terms := lo.Uniq(lo.Filter(words(query), func(w string, _ int) bool { return !stopwords[w] }))
	if len(terms) == 0 {
		return NotFoundAnswer, nil
	}

	best, bestScore := passage{}, 0
	for _, p := range passages(retrieved) {
		sentenceWords := words(p.sentence)
		score := lo.CountBy(terms, func(w string) bool { return lo.Contains(sentenceWords, w) })
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	if bestScore == 0 {
		return NotFoundAnswer, nil
	}
	if best.source == "" {
		return best.sentence, nil
	}
	return fmt.Sprintf("%s (Source: %s)", best.sentence, best.source), nil
}

// passages splits "Source: ...\nContent: ..." blocks into sentences tagged
// with their source. Lines outside a block count as sourceless content.
func passages(retrieved string) []passage {
	var out []passage
	source := ""
	for _, line := range strings.Split(retrieved, "\n") {
		switch {
		case strings.HasPrefix(line, "Source: "):
			source = strings.TrimPrefix(line, "Source: ")
			continue
		case strings.HasPrefix(line, "Content: "):
			line = strings.TrimPrefix(line, "Content: ")
		}
		for _, s := range sentences(line) {
			out = append(out, passage{source: source, sentence: s})
		}
	}
	return out
}

func sentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		end := r == '!' || r == '?' || (r == '.' && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])))
		if end {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
