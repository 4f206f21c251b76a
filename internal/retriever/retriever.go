// Package retriever turns a user query into ranked chunk results: embed the
// query, search the vector store, map distances to similarity scores.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bull/paper-rag/internal/storage"
)

// ErrInvalidTopK indicates a non-positive k was requested. It is surfaced
// before any embedding call, so no partial work is performed.
var ErrInvalidTopK = errors.New("top_k must be positive")

// Embedder is the query-embedding dependency. The implementation must use
// the same model configuration as ingestion; retrieval scores are meaningless
// across embedding spaces.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Expander produces query variants to improve recall. Optional.
type Expander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// Result is one retrieved chunk with its similarity score (higher is
// better). Results are request-scoped and discarded after the request.
type Result struct {
	Chunk      storage.Chunk
	Similarity float64
}

// Retriever orchestrates embed -> nearest-neighbour search -> score mapping.
type Retriever struct {
	embedder Embedder
	store    storage.Store
	expander Expander // nil when expansion is disabled
	logger   *slog.Logger
}

// New creates a Retriever. expander may be nil; logger defaults to
// slog.Default().
func New(embedder Embedder, store storage.Store, expander Expander, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		expander: expander,
		logger:   logger,
	}
}

// Retrieve returns at most k results ordered by descending similarity.
// Similarity is 1 - cosine distance, which is monotonic with the store's own
// ascending-distance ranking, so the store's order is passed through
// untouched. A sparse corpus returning fewer than k matches is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, k)
	}

	if r.expander != nil {
		return r.retrieveExpanded(ctx, query, k)
	}
	return r.retrieveOne(ctx, query, k)
}

func (r *Retriever) retrieveOne(ctx context.Context, query string, k int) ([]Result, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scored, err := r.store.Nearest(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("nearest search: %w", err)
	}

	results := make([]Result, len(scored))
	for i, sc := range scored {
		results[i] = Result{
			Chunk:      sc.Chunk,
			Similarity: 1 - sc.Distance,
		}
	}
	return results, nil
}

// retrieveExpanded searches once per query variant and merges the result
// sets, keeping each chunk's best similarity. The original query is always
// among the variants, so expansion never reduces recall below plain
// retrieval.
func (r *Retriever) retrieveExpanded(ctx context.Context, query string, k int) ([]Result, error) {
	variants, err := r.expander.Expand(ctx, query)
	if err != nil || len(variants) == 0 {
		// Degrade to the original query rather than failing retrieval.
		r.logger.Warn("Query expansion failed, using original query", "error", err)
		variants = []string{query}
	}

	best := make(map[int64]Result)
	for _, variant := range variants {
		results, err := r.retrieveOne(ctx, variant, k)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			if existing, seen := best[res.Chunk.ID]; !seen || res.Similarity > existing.Similarity {
				best[res.Chunk.ID] = res
			}
		}
	}

	merged := make([]Result, 0, len(best))
	for _, res := range best {
		merged = append(merged, res)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Similarity != merged[j].Similarity {
			return merged[i].Similarity > merged[j].Similarity
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})

	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}
