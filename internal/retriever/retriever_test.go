package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/paper-rag/internal/storage"
)

const testDim = 4

// countingEmbedder returns a fixed vector per text and counts invocations.
type countingEmbedder struct {
	calls   int
	vectors map[string][]float32
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return unitVec(0), nil
}

// staticExpander returns a fixed variant list.
type staticExpander struct {
	variants []string
}

func (e *staticExpander) Expand(ctx context.Context, query string) ([]string, error) {
	return e.variants, nil
}

func unitVec(axis int) []float32 {
	v := make([]float32, testDim)
	v[axis] = 1
	return v
}

func seededStore(t *testing.T, texts ...string) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore(testDim)
	chunks := make([]storage.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = storage.Chunk{
			Title:     "paper",
			Summary:   "summary",
			Text:      text,
			Embedding: unitVec(i % testDim),
		}
	}
	_, err := store.Upsert(context.Background(), chunks)
	require.NoError(t, err)
	return store
}

func TestRetrieve_TopKContract(t *testing.T) {
	// Corpus of 3 chunks, k=5: exactly 3 results, descending similarity.
	store := seededStore(t, "A", "B", "C")
	embedder := &countingEmbedder{vectors: map[string][]float32{"x": unitVec(0)}}
	r := New(embedder, store, nil, nil)

	results, err := r.Retrieve(context.Background(), "x", 5)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity,
			"Results must be ordered by descending similarity")
	}
	assert.Equal(t, "A", results[0].Chunk.Text, "Chunk matching the query vector ranks first")
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

func TestRetrieve_InvalidTopK(t *testing.T) {
	store := seededStore(t, "A")
	embedder := &countingEmbedder{}
	r := New(embedder, store, nil, nil)

	_, err := r.Retrieve(context.Background(), "x", 0)
	assert.ErrorIs(t, err, ErrInvalidTopK)
	assert.Zero(t, embedder.calls, "No embedding call may happen for invalid k")

	_, err = r.Retrieve(context.Background(), "x", -3)
	assert.ErrorIs(t, err, ErrInvalidTopK)
	assert.Zero(t, embedder.calls)
}

func TestRetrieve_EmptyCorpus(t *testing.T) {
	store := storage.NewMemoryStore(testDim)
	embedder := &countingEmbedder{}
	r := New(embedder, store, nil, nil)

	results, err := r.Retrieve(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Empty(t, results, "Empty corpus returns empty results, not an error")
}

func TestRetrieve_DimensionMismatchSurfaces(t *testing.T) {
	// Query-time model with a different dimension than the ingested corpus
	// must flag a mismatch instead of silently returning nonsense rankings.
	store := seededStore(t, "A")
	embedder := &countingEmbedder{vectors: map[string][]float32{
		"x": make([]float32, testDim+2),
	}}
	r := New(embedder, store, nil, nil)

	_, err := r.Retrieve(context.Background(), "x", 5)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestRetrieve_SimilarityMonotonicWithStoreOrder(t *testing.T) {
	store := seededStore(t, "A", "B", "C", "D")
	embedder := &countingEmbedder{vectors: map[string][]float32{"x": unitVec(1)}}
	r := New(embedder, store, nil, nil)

	results, err := r.Retrieve(context.Background(), "x", 4)
	require.NoError(t, err)
	require.Len(t, results, 4)

	// The store's own ranking is ascending distance; the mapped similarities
	// must preserve that order exactly (never re-shuffled).
	scored, err := store.Nearest(context.Background(), unitVec(1), 4)
	require.NoError(t, err)
	for i := range scored {
		assert.Equal(t, scored[i].ID, results[i].Chunk.ID)
		assert.InDelta(t, 1-scored[i].Distance, results[i].Similarity, 1e-9)
	}
}

func TestRetrieve_ExpansionMergesBestScore(t *testing.T) {
	store := seededStore(t, "A", "B")
	embedder := &countingEmbedder{vectors: map[string][]float32{
		"x":       unitVec(0),
		"variant": unitVec(1),
	}}
	expander := &staticExpander{variants: []string{"x", "variant"}}
	r := New(embedder, store, expander, nil)

	results, err := r.Retrieve(context.Background(), "x", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Each chunk keeps its best similarity across variants, so both chunks
	// surface with a perfect score.
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.InDelta(t, 1.0, results[1].Similarity, 1e-6)
	assert.Equal(t, 2, embedder.calls, "One embedding call per variant")
}

func TestRetrieve_ExpansionInvalidTopKStillRejected(t *testing.T) {
	store := seededStore(t, "A")
	embedder := &countingEmbedder{}
	r := New(embedder, store, &staticExpander{variants: []string{"x"}}, nil)

	_, err := r.Retrieve(context.Background(), "x", 0)
	assert.ErrorIs(t, err, ErrInvalidTopK)
	assert.Zero(t, embedder.calls)
}
