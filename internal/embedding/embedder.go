// Package embedding converts text into fixed-dimension vectors via the
// OpenAI embeddings API. The model identifier and vector dimension are
// injected from configuration: ingestion and query-time code construct their
// Embedder from the same Config values, so both paths always embed into the
// same vector space.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/bull/paper-rag/internal/backend"
	"github.com/bull/paper-rag/internal/storage"
)

// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
const DefaultBatchSize = 500

// ErrEmbeddingUnavailable indicates the embedding backend is unreachable or
// produced malformed output. Callers must treat it as fatal for the item
// being embedded; vectors are never silently zeroed or truncated.
var ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

// Embedder generates embeddings with batching and exponential backoff on
// rate limit errors.
type Embedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
}

// NewEmbedder creates an Embedder for the given model and dimension.
// If batchSize is 0, DefaultBatchSize is used.
func NewEmbedder(client *Client, model string, dimension, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		client:    client,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}
}

// Dimension reports the configured vector dimension.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed generates the embedding for a single text (the query path).
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for the given texts (the ingestion path).
// Requests are batched; each batch retries with exponential backoff on rate
// limit errors only.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var allEmbeddings [][]float32

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry
// logic. Rate limit errors (HTTP 429) retry with backoff; everything else is
// permanent and classified into the error taxonomy.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err // Will retry with backoff
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: got %d embeddings for %d inputs",
				ErrEmbeddingUnavailable, len(resp.Data), len(texts)))
		}

		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			if len(data.Embedding) != e.dimension {
				return backoff.Permanent(fmt.Errorf(
					"%w: model %q returned %d dimensions, expected %d",
					storage.ErrDimensionMismatch, e.model, len(data.Embedding), e.dimension))
			}
			embeddings[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, classify(err)
	}
	return embeddings, nil
}

// classify maps transport failures onto the error taxonomy: context
// deadlines become backend.ErrTimeout, API and network faults become
// ErrEmbeddingUnavailable, dimension mismatches pass through unchanged.
func classify(err error) error {
	if timeoutErr := backend.ClassifyTimeout("embedding call", err); errors.Is(timeoutErr, backend.ErrTimeout) {
		return timeoutErr
	}
	if errors.Is(err, storage.ErrDimensionMismatch) || errors.Is(err, ErrEmbeddingUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
