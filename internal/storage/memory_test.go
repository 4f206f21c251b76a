package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func vec(values ...float32) []float32 {
	v := make([]float32, testDim)
	copy(v, values)
	return v
}

func TestMemoryStore_UpsertAssignsSequentialIDs(t *testing.T) {
	store := NewMemoryStore(testDim)
	ctx := context.Background()

	inserted, err := store.Upsert(ctx, []Chunk{
		{Title: "a", Summary: "s", Text: "one", Embedding: vec(1)},
		{Title: "a", Summary: "s", Text: "two", Embedding: vec(0, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	results, err := store.Nearest(ctx, vec(1), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, "one", results[0].Text)
}

func TestMemoryStore_NearestOrdersByDistanceThenID(t *testing.T) {
	store := NewMemoryStore(testDim)
	ctx := context.Background()

	// Two identical vectors (tie) plus one orthogonal.
	_, err := store.Upsert(ctx, []Chunk{
		{Title: "t", Summary: "s", Text: "tie-first", Embedding: vec(1)},
		{Title: "t", Summary: "s", Text: "far", Embedding: vec(0, 1)},
		{Title: "t", Summary: "s", Text: "tie-second", Embedding: vec(1)},
	})
	require.NoError(t, err)

	results, err := store.Nearest(ctx, vec(1), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "tie-first", results[0].Text, "Tie must break by ascending id")
	assert.Equal(t, "tie-second", results[1].Text)
	assert.Equal(t, "far", results[2].Text)
	assert.Less(t, results[0].Distance, results[2].Distance)
}

func TestMemoryStore_NearestSparseCorpus(t *testing.T) {
	store := NewMemoryStore(testDim)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []Chunk{
		{Title: "t", Summary: "s", Text: "only", Embedding: vec(1)},
	})
	require.NoError(t, err)

	results, err := store.Nearest(ctx, vec(1), 5)
	require.NoError(t, err)
	assert.Len(t, results, 1, "Fewer matches than k is not an error")
}

func TestMemoryStore_NearestEmptyCorpus(t *testing.T) {
	store := NewMemoryStore(testDim)

	results, err := store.Nearest(context.Background(), vec(1), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_DimensionValidation(t *testing.T) {
	store := NewMemoryStore(testDim)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []Chunk{
		{Title: "t", Summary: "s", Text: "bad", Embedding: make([]float32, testDim+1)},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch, "Should reject wrong embedding dimension")

	_, err = store.Nearest(ctx, make([]float32, testDim-1), 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch, "Should reject wrong query dimension")
}

func TestMemoryStore_DeleteDuplicatesKeepsLowestID(t *testing.T) {
	store := NewMemoryStore(testDim)
	ctx := context.Background()

	same := Chunk{Title: "t", Summary: "s", Text: "dup", Embedding: vec(1)}
	other := Chunk{Title: "t", Summary: "s", Text: "unique", Embedding: vec(0, 1)}

	_, err := store.Upsert(ctx, []Chunk{same, other, same, same})
	require.NoError(t, err)

	removed, err := store.DeleteDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, 2, store.Len())

	// The surviving duplicate is the first inserted (lowest id).
	results, err := store.Nearest(ctx, vec(1), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, "dup", results[0].Text)
}

func TestMemoryStore_DeleteDuplicatesIdempotent(t *testing.T) {
	store := NewMemoryStore(testDim)
	ctx := context.Background()

	same := Chunk{Title: "t", Summary: "s", Text: "dup", Embedding: vec(1)}
	_, err := store.Upsert(ctx, []Chunk{same, same})
	require.NoError(t, err)

	removed, err := store.DeleteDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = store.DeleteDuplicates(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "Second pass removes nothing")
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_DistinguishesMetadata(t *testing.T) {
	store := NewMemoryStore(testDim)
	ctx := context.Background()

	// Same text and embedding but different titles are not duplicates.
	_, err := store.Upsert(ctx, []Chunk{
		{Title: "a", Summary: "s", Text: "text", Embedding: vec(1)},
		{Title: "b", Summary: "s", Text: "text", Embedding: vec(1)},
	})
	require.NoError(t, err)

	removed, err := store.DeleteDuplicates(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
