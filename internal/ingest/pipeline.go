// Package ingest populates the vector store: chunk each document, embed the
// chunks, upsert rows, then collapse duplicates once per batch.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/paper-rag/internal/source"
	"github.com/bull/paper-rag/internal/storage"
)

// Chunker splits document text into chunk strings.
type Chunker interface {
	Split(text string) []string
}

// Embedder generates embeddings for a batch of chunk texts. It must share
// the retrieval path's model configuration.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Summary reports the outcome of one ingestion batch.
type Summary struct {
	TotalDocs int
	Inserted  int   // Chunk rows written
	Skipped   int   // Documents with no chunkable text
	Removed   int64 // Duplicate rows collapsed at batch end
	Failed    []FailedDoc
	Duration  time.Duration
}

// FailedDoc records a document that could not be ingested.
type FailedDoc struct {
	Title  string
	Reason string
}

// Pipeline orchestrates chunking, embedding and storage for document batches.
type Pipeline struct {
	chunker  Chunker
	embedder Embedder
	store    storage.Store
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline with the given components.
func NewPipeline(chunker Chunker, embedder Embedder, store storage.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Ingest processes a batch of documents and deduplicates once at the end, so
// re-running ingestion over already-ingested sources is idempotent in effect:
// duplicates collapse to the lowest-id row. A document that fails to embed or
// store is recorded and skipped; the rest of the batch continues.
func (p *Pipeline) Ingest(ctx context.Context, docs []source.Document) (*Summary, error) {
	start := time.Now()
	summary := &Summary{TotalDocs: len(docs)}

	p.logger.Info("Starting ingestion", "documents", len(docs))

	for _, doc := range docs {
		inserted, err := p.ingestDocument(ctx, doc)
		if err != nil {
			p.logger.Warn("Failed to ingest document", "title", doc.Title, "error", err)
			summary.Failed = append(summary.Failed, FailedDoc{
				Title:  doc.Title,
				Reason: err.Error(),
			})
			continue
		}
		if inserted == 0 {
			summary.Skipped++
			continue
		}
		summary.Inserted += inserted
	}

	// One dedup pass per batch, not per chunk, to avoid repeated full scans.
	removed, err := p.store.DeleteDuplicates(ctx)
	if err != nil {
		return summary, fmt.Errorf("delete duplicates: %w", err)
	}
	summary.Removed = removed
	summary.Duration = time.Since(start)

	p.logger.Info("Ingestion complete",
		"inserted", summary.Inserted,
		"skipped", summary.Skipped,
		"removed", summary.Removed,
		"failed", len(summary.Failed),
		"duration", summary.Duration,
	)
	return summary, nil
}

// ingestDocument handles one document: chunk, embed, upsert. Returns the
// number of chunk rows written; zero means the document had no chunkable
// text.
func (p *Pipeline) ingestDocument(ctx context.Context, doc source.Document) (int, error) {
	chunks := p.chunker.Split(doc.Text)
	if len(chunks) == 0 {
		p.logger.Debug("Document has no chunkable text", "title", doc.Title)
		return 0, nil
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	rows := make([]storage.Chunk, len(chunks))
	for i, text := range chunks {
		rows[i] = storage.Chunk{
			Title:     doc.Title,
			Summary:   doc.Summary,
			Text:      text,
			Embedding: embeddings[i],
		}
	}

	inserted, err := p.store.Upsert(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	p.logger.Debug("Ingested document", "title", doc.Title, "chunks", inserted)
	return inserted, nil
}
