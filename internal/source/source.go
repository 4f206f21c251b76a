// Package source defines the document model produced by ingestion sources.
// Concrete sources live in subpackages (arxiv, githubdocs).
package source

import "context"

// Document is one raw source text unit awaiting ingestion. Immutable once
// created; the ingestion pipeline is its only consumer.
type Document struct {
	ID      string // UUID assigned by the source at fetch time
	Title   string
	Summary string // Short natural-language abstract
	Text    string // Full text to be chunked and embedded
}

// Source fetches a batch of raw documents for ingestion.
type Source interface {
	Fetch(ctx context.Context) ([]Document, error)
}
