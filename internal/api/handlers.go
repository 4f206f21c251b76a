// Package api exposes the retrieval and generation pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bull/paper-rag/internal/generate"
	"github.com/bull/paper-rag/internal/retriever"
)

// DefaultTopK is used when a request does not specify top_k.
const DefaultTopK = 5

// Retriever is the retrieval dependency of the HTTP handlers.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]retriever.Result, error)
}

// Generator is the generation dependency of the HTTP handlers.
type Generator interface {
	Generate(ctx context.Context, query string, results []retriever.Result, opts generate.Options) generate.GenerationResponse
}

// RetrievedChunk is one scored chunk in a /retrieve response.
type RetrievedChunk struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Summary         string  `json:"summary"`
	Chunk           string  `json:"chunk"`
	SimilarityScore float64 `json:"similarity_score"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handlers bundles the HTTP handlers with their dependencies.
type Handlers struct {
	retriever Retriever
	generator Generator
	logger    *slog.Logger
}

// NewHandlers creates the handler set. A nil logger falls back to
// slog.Default().
func NewHandlers(ret Retriever, gen Generator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		retriever: ret,
		generator: gen,
		logger:    logger,
	}
}

// Retrieve handles GET /retrieve?query=&top_k=. It returns the scored chunks
// as JSON, 400 on missing query or invalid top_k, and 404 when the corpus
// yields nothing.
func (h *Handlers) Retrieve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameter is required"})
		return
	}

	topK, err := parseTopK(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	results, err := h.retriever.Retrieve(r.Context(), query, topK)
	if err != nil {
		if errors.Is(err, retriever.ErrInvalidTopK) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("Retrieval failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "retrieval failed"})
		return
	}

	if len(results) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no matching documents found"})
		return
	}

	chunks := make([]RetrievedChunk, len(results))
	for i, res := range results {
		chunks[i] = RetrievedChunk{
			ID:              res.Chunk.ID,
			Title:           res.Chunk.Title,
			Summary:         res.Chunk.Summary,
			Chunk:           res.Chunk.Text,
			SimilarityScore: res.Similarity,
		}
	}
	writeJSON(w, http.StatusOK, chunks)
}

// Generate handles GET /generate?query=&top_k=&max_tokens=&temperature=. The
// response body is always a well-formed GenerationResponse; pipeline failures
// surface as an error-prefixed response text, not a broken payload.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query parameter is required"})
		return
	}

	topK, err := parseTopK(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	opts, err := parseGenerateOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	results, err := h.retriever.Retrieve(r.Context(), query, topK)
	if err != nil {
		if errors.Is(err, retriever.ErrInvalidTopK) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("Retrieval failed before generation", "error", err)
		writeJSON(w, http.StatusOK, generate.GenerationResponse{
			Response: generate.ErrorPrefix + "failed to retrieve context for the query",
		})
		return
	}

	response := h.generator.Generate(r.Context(), query, results, opts)
	writeJSON(w, http.StatusOK, response)
}

// HealthResponse is the JSON body of the /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker is implemented by the storage layer's Health method.
type HealthChecker interface {
	Health(ctx context.Context) error
}

func parseTopK(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("top_k")
	if raw == "" {
		return DefaultTopK, nil
	}
	topK, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("top_k must be an integer, got %q", raw)
	}
	return topK, nil
}

func parseGenerateOptions(r *http.Request) (generate.Options, error) {
	var opts generate.Options
	if raw := r.URL.Query().Get("max_tokens"); raw != "" {
		maxTokens, err := strconv.Atoi(raw)
		if err != nil || maxTokens <= 0 {
			return opts, fmt.Errorf("max_tokens must be a positive integer, got %q", raw)
		}
		opts.MaxTokens = maxTokens
	}
	if raw := r.URL.Query().Get("temperature"); raw != "" {
		temperature, err := strconv.ParseFloat(raw, 64)
		if err != nil || temperature < 0 {
			return opts, fmt.Errorf("temperature must be a non-negative number, got %q", raw)
		}
		opts.Temperature = temperature
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
