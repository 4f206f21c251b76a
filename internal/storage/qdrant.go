package storage

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/paper-rag/internal/backend"
)

// QdrantStore implements Store on a Qdrant collection. Point ids are numeric
// and assigned monotonically at ingestion time, so "lowest id survives"
// dedup keeps the earliest ingested duplicate, matching the Postgres backend.
type QdrantStore struct {
	client    *qdrant.Client
	dimension int
	nextID    atomic.Int64
}

// NewQdrantStore creates a Qdrant client and fails fast, with retry, if the
// server is unreachable.
func NewQdrantStore(host string, port int, dimension int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{
		client:    client,
		dimension: dimension,
	}
	store.nextID.Store(time.Now().UnixNano())

	ctx := context.Background()
	if err := store.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	return store, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return backend.ClassifyTimeout("qdrant health check", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureSchema creates the chunk collection with cosine distance vectors.
// Idempotent, safe to call on every startup.
func (s *QdrantStore) EnsureSchema(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == TableName {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: TableName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Upsert stores chunk rows as points, batched in groups of 100, with retry on
// transient failures. Ids are assigned from a monotonic counter.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for i, chunk := range chunks {
		if len(chunk.Embedding) != s.dimension {
			return 0, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), s.dimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batch := chunks[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, chunk := range batch {
			id := s.nextID.Add(1)
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(id)),
				Vectors: qdrant.NewVectors(chunk.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"title":   chunk.Title,
					"summary": chunk.Summary,
					"chunk":   chunk.Text,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return 0, fmt.Errorf("failed to upsert batch %d-%d: %w", i, end,
				backend.ClassifyTimeout("qdrant upsert", err))
		}
	}
	return len(chunks), nil
}

// upsertWithRetry performs one upsert call with exponential backoff.
func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: TableName,
			Points:         points,
		})
		return err
	}, backoff.WithContext(exponentialBackoff, ctx))
}

// Nearest performs vector similarity search. Qdrant's cosine score is
// converted back to a distance (1 - score) so all backends report the same
// quantity; the result order is re-sorted only to apply the ascending-id tie
// break, which Qdrant does not guarantee.
func (s *QdrantStore) Nearest(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: TableName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w",
			backend.ClassifyTimeout("qdrant query", err))
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		scored = append(scored, ScoredChunk{
			Chunk: Chunk{
				ID:      int64(result.Id.GetNum()),
				Title:   payload["title"].GetStringValue(),
				Summary: payload["summary"].GetStringValue(),
				Text:    payload["chunk"].GetStringValue(),
			},
			Distance: 1 - float64(result.Score),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].ID < scored[j].ID
	})
	return scored, nil
}

// DeleteDuplicates scrolls the whole collection, groups points by identical
// (title, summary, chunk, embedding) and deletes all but the lowest id in
// each group.
func (s *QdrantStore) DeleteDuplicates(ctx context.Context) (int64, error) {
	keep := make(map[string]uint64)      // content key -> lowest point id
	members := make(map[string][]uint64) // content key -> all point ids
	var offset *qdrant.PointId

	batchSize := uint32(256)
	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: TableName,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return 0, fmt.Errorf("failed to scroll points: %w",
				backend.ClassifyTimeout("qdrant scroll", err))
		}

		for _, point := range results {
			id := point.Id.GetNum()
			payload := point.Payload
			key := fmt.Sprintf("%s\x00%s\x00%s\x00%v",
				payload["title"].GetStringValue(),
				payload["summary"].GetStringValue(),
				payload["chunk"].GetStringValue(),
				point.Vectors.GetVector().GetData(),
			)
			members[key] = append(members[key], id)
			if existing, seen := keep[key]; !seen || id < existing {
				keep[key] = id
			}
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	var doomed []*qdrant.PointId
	for key, ids := range members {
		for _, id := range ids {
			if id != keep[key] {
				doomed = append(doomed, qdrant.NewIDNum(id))
			}
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: TableName,
		Points:         qdrant.NewPointsSelector(doomed...),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicates: %w",
			backend.ClassifyTimeout("qdrant delete", err))
	}
	return int64(len(doomed)), nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
