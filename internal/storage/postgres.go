package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/bull/paper-rag/internal/backend"
)

// dedupLockID is the advisory lock key serialising DeleteDuplicates against
// concurrent dedup runs. Upserts are not serialised; Postgres row-level
// concurrency control handles concurrent readers and writers.
const dedupLockID = 0x7261675f64656470 // "rag_dedp"

// PostgresStore implements Store on Postgres with the pgvector extension.
// Chunk rows live in one table (id, title, summary, chunk, embedding) with a
// bigserial id, so the lowest id among duplicates is the earliest inserted.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewPostgresStore connects a pgx pool to the given DSN, registers the
// pgvector codec on every connection, and verifies connectivity with retry.
func NewPostgresStore(ctx context.Context, dsn string, dimension int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	store := &PostgresStore{
		pool:      pool,
		dimension: dimension,
	}

	if err := store.healthCheckWithRetry(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	return store, nil
}

// healthCheckWithRetry pings with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *PostgresStore) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(exponentialBackoff, ctx))
}

// Health verifies a connection can be acquired and the server responds.
func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return backend.ClassifyTimeout("postgres ping", err)
	}
	return nil
}

// EnsureSchema creates the vector extension, the chunk table and the cosine
// HNSW index. Idempotent, safe to call on every startup.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			chunk TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, TableName, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s USING hnsw (embedding vector_cosine_ops)`, TableName, TableName),
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", backend.ClassifyTimeout("postgres exec", err))
		}
	}
	return nil
}

// Upsert appends chunk rows in one batch. It does not deduplicate inline;
// DeleteDuplicates is a separate maintenance operation run at batch end.
func (s *PostgresStore) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for i, chunk := range chunks {
		if len(chunk.Embedding) != s.dimension {
			return 0, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), s.dimension)
		}
	}

	batch := &pgx.Batch{}
	sql := fmt.Sprintf(
		`INSERT INTO %s (title, summary, chunk, embedding) VALUES ($1, $2, $3, $4)`, TableName)
	for _, chunk := range chunks {
		batch.Queue(sql, chunk.Title, chunk.Summary, chunk.Text, pgvector.NewVector(chunk.Embedding))
	}

	// SendBatch acquires a pooled connection and releases it on Close,
	// on every exit path.
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("insert chunk: %w", backend.ClassifyTimeout("postgres insert", err))
		}
	}
	return len(chunks), nil
}

// Nearest returns up to k chunks by ascending cosine distance (`<=>`), ties
// broken by ascending id so the ordering is deterministic.
func (s *PostgresStore) Nearest(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	sql := fmt.Sprintf(
		`SELECT id, title, summary, chunk, embedding <=> $1 AS distance
		 FROM %s
		 ORDER BY distance ASC, id ASC
		 LIMIT $2`, TableName)

	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("nearest query: %w", backend.ClassifyTimeout("postgres query", err))
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(&sc.ID, &sc.Title, &sc.Summary, &sc.Text, &sc.Distance); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nearest rows: %w", backend.ClassifyTimeout("postgres query", err))
	}
	return results, nil
}

// DeleteDuplicates removes every row whose (title, summary, chunk, embedding)
// match a lower-id row. The transaction takes an advisory lock so concurrent
// ingestion batches never race their dedup passes against each other.
func (s *PostgresStore) DeleteDuplicates(ctx context.Context) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin dedup tx: %w", backend.ClassifyTimeout("postgres begin", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(dedupLockID)); err != nil {
		return 0, fmt.Errorf("acquire dedup lock: %w", backend.ClassifyTimeout("postgres lock", err))
	}

	sql := fmt.Sprintf(
		`DELETE FROM %s d
		 USING %s keep
		 WHERE d.id > keep.id
		   AND d.title = keep.title
		   AND d.summary = keep.summary
		   AND d.chunk = keep.chunk
		   AND d.embedding = keep.embedding`, TableName, TableName)

	tag, err := tx.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("delete duplicates: %w", backend.ClassifyTimeout("postgres delete", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit dedup tx: %w", backend.ClassifyTimeout("postgres commit", err))
	}
	return tag.RowsAffected(), nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
