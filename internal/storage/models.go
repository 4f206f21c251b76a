package storage

// Chunk is one persisted row: a span of document text with its embedding and
// the parent document's title and summary denormalized for retrieval.
type Chunk struct {
	ID        int64     // Assigned by the store; lowest id survives dedup
	Title     string    // Parent document title
	Summary   string    // Parent document summary
	Text      string    // Chunk text content
	Embedding []float32 // Fixed-dimension vector, validated against the store's dimension
}

// ScoredChunk pairs a chunk with its cosine distance to one query vector.
// Smaller distance means more similar; stores return results ordered by
// ascending distance with ties broken by ascending id.
type ScoredChunk struct {
	Chunk
	Distance float64
}

// TableName is the Postgres table (and Qdrant collection) holding chunk rows.
const TableName = "documents"
