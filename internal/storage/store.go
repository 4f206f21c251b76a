// Package storage persists document chunks with their embeddings and serves
// nearest-neighbour queries. Three backends implement the same contract:
// Postgres with pgvector (primary), Qdrant, and an in-memory store for tests
// and local development.
package storage

import "context"

// Store is the vector store contract shared by all backends.
//
// Nearest returns at most k chunks ordered by ascending cosine distance,
// ties broken by ascending chunk id. Fewer than k matches is not an error.
// DeleteDuplicates collapses rows with identical (title, summary, text,
// embedding), keeping the lowest id, and reports how many rows it removed.
type Store interface {
	Upsert(ctx context.Context, chunks []Chunk) (int, error)
	Nearest(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)
	DeleteDuplicates(ctx context.Context) (int64, error)
	Health(ctx context.Context) error
	Close() error
}
