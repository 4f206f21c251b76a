// Package chunker splits document text into fixed-size word windows for
// embedding and retrieval.
package chunker

import (
	"iter"
	"strings"
)

const (
	// DefaultMaxWords is the window size when none is configured.
	DefaultMaxWords = 120

	// DefaultOverlapWords is the default window overlap.
	DefaultOverlapWords = 0
)

// Chunker produces deterministic, whitespace-normalized word windows.
// The same input and configuration always yield the same chunk sequence,
// which re-ingestion relies on for exact-text deduplication.
type Chunker struct {
	maxWords     int
	overlapWords int
}

// New creates a Chunker with the given window size and overlap.
// Non-positive maxWords falls back to DefaultMaxWords; overlap is clamped
// into [0, maxWords-1] so every window advances.
func New(maxWords, overlapWords int) *Chunker {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if overlapWords < 0 {
		overlapWords = DefaultOverlapWords
	}
	if overlapWords >= maxWords {
		overlapWords = maxWords - 1
	}
	return &Chunker{
		maxWords:     maxWords,
		overlapWords: overlapWords,
	}
}

// Chunks returns a lazy, restartable sequence of chunk strings covering the
// whole input. Empty or whitespace-only input yields an empty sequence; input
// shorter than the window yields a single chunk.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		words := strings.Fields(text)
		if len(words) == 0 {
			return
		}

		step := c.maxWords - c.overlapWords
		for start := 0; ; start += step {
			end := start + c.maxWords
			if end > len(words) {
				end = len(words)
			}
			if !yield(strings.Join(words[start:end], " ")) {
				return
			}
			if end == len(words) {
				return
			}
		}
	}
}

// Split collects the chunk sequence into a slice.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	for chunk := range c.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
