// Package chunker splits extracted page text into overlapping token windows
// sized for embedding models.
package chunker

import (
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`\w+|[^\w\s]`)

// Tokenize splits text into word and punctuation tokens.
func Tokenize(text string) []string {
	return tokenRe.FindAllString(text, -1)
}

// Chunker produces overlapping token windows from raw text.
type Chunker struct {
	maxTokens int
	overlap   int
}

// New constructs a Chunker. Overlap must be smaller than maxTokens;
// out-of-range values fall back to the defaults used at ingest time.
func New(maxTokens, overlap int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 900
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = maxTokens / 8
	}
	return &Chunker{maxTokens: maxTokens, overlap: overlap}
}

// Split chunks text into windows of at most maxTokens tokens, each window
// sharing the trailing overlap tokens with its successor. Empty input
// yields no chunks.
func (c *Chunker) Split(text string) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	var chunks []string
	step := c.maxTokens - c.overlap
	for i := 0; i < len(tokens); i += step {
		end := i + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[i:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
