package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force in-memory Store used by tests and local
// development. Ids are assigned sequentially on insert so dedup semantics
// (lowest id survives) match the Postgres backend.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	nextID    int64
	chunks    []Chunk
}

// NewMemoryStore creates an empty in-memory store for vectors of the given
// dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		nextID:    1,
	}
}

// Upsert appends chunk rows, assigning sequential ids. It does not
// deduplicate inline; DeleteDuplicates is a separate maintenance operation.
func (s *MemoryStore) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for i, chunk := range chunks {
		if len(chunk.Embedding) != s.dimension {
			return 0, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), s.dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		chunk.ID = s.nextID
		s.nextID++
		s.chunks = append(s.chunks, chunk)
	}
	return len(chunks), nil
}

// Nearest returns up to k chunks by ascending cosine distance, ties broken by
// ascending id.
func (s *MemoryStore) Nearest(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]ScoredChunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		scored = append(scored, ScoredChunk{
			Chunk:    chunk,
			Distance: cosineDistance(vector, chunk.Embedding),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].ID < scored[j].ID
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// DeleteDuplicates removes rows whose (title, summary, text, embedding) match
// an earlier row, keeping the lowest id.
func (s *MemoryStore) DeleteDuplicates(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]int64) // content key -> lowest id
	kept := make([]Chunk, 0, len(s.chunks))
	var removed int64

	// Rows are held in insertion order, which is ascending-id order, so the
	// first occurrence of a key is always the lowest id.
	for _, chunk := range s.chunks {
		key := contentKey(chunk)
		if _, dup := seen[key]; dup {
			removed++
			continue
		}
		seen[key] = chunk.ID
		kept = append(kept, chunk)
	}
	s.chunks = kept
	return removed, nil
}

// Health always succeeds; the store lives in process memory.
func (s *MemoryStore) Health(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func contentKey(c Chunk) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%v", c.Title, c.Summary, c.Text, c.Embedding)
}

func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
