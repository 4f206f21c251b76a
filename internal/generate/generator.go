// Package generate assembles retrieved chunks into a grounded prompt and
// calls the language-model backend for an answer. Backend faults are never
// raised to callers: they become a well-formed response carrying an
// error-marked text, since the chat-style caller has no other channel for
// partial failure.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/paper-rag/internal/backend"
	"github.com/bull/paper-rag/internal/retriever"
)

// ErrorPrefix marks the response text of a failed generation.
const ErrorPrefix = "Error: "

var errEmptyCompletion = errors.New("backend returned no completion choices")

// promptTemplate combines instructions, retrieved context and the query.
const promptTemplate = `You are a helpful AI language assistant, please use the following context to answer the query. Answer in English.
Context: %s
Query: %s
Answer:`

// Options are per-request sampling parameters; zero values fall back to the
// Generator's configured defaults.
type Options struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// GenerationResponse is the generated answer. TokensPerSecond is derived
// from backend usage counters and is nil whenever the backend reports none;
// it is never invented.
type GenerationResponse struct {
	Response        string   `json:"response"`
	TokensPerSecond *float64 `json:"response_tokens_per_second,omitempty"`
}

// Generator builds prompts and normalizes backend replies.
type Generator struct {
	backend  Backend
	model    string
	defaults Options
	logger   *slog.Logger
}

// New creates a Generator with the given backend, model and default sampling
// parameters. logger defaults to slog.Default().
func New(llm Backend, model string, defaults Options, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		backend:  llm,
		model:    model,
		defaults: defaults,
		logger:   logger,
	}
}

// Generate answers the query grounded in the given results. The context
// block concatenates chunk texts in the order supplied; the retriever's
// ranked order is the contract and is never re-sorted here. Empty results is
// valid: the model answers from the query alone. The backend is called
// exactly once; any failure yields an ErrorPrefix-marked response instead of
// an error.
func (g *Generator) Generate(ctx context.Context, query string, results []retriever.Result, opts Options) GenerationResponse {
	prompt := g.BuildPrompt(query, results)

	req := CompletionRequest{
		Model:       g.model,
		Prompt:      prompt,
		MaxTokens:   g.defaults.MaxTokens,
		Temperature: g.defaults.Temperature,
		TopP:        g.defaults.TopP,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = opts.Temperature
	}
	if opts.TopP > 0 {
		req.TopP = opts.TopP
	}

	completion, err := g.backend.Complete(ctx, req)
	if err != nil {
		err = backend.ClassifyTimeout("generation call", err)
		g.logger.Warn("Generation backend failed", "error", err)
		return GenerationResponse{
			Response: fmt.Sprintf("%sfailed to generate a response: %v", ErrorPrefix, err),
		}
	}

	resp := GenerationResponse{Response: completion.Text}
	if completion.CompletionTokens > 0 {
		tps := float64(completion.TotalTokens) / float64(completion.CompletionTokens)
		resp.TokensPerSecond = &tps
	}
	return resp
}

// BuildPrompt renders the deterministic prompt template. Exported so the
// retrieval order contract is inspectable.
func (g *Generator) BuildPrompt(query string, results []retriever.Result) string {
	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Chunk.Text
	}
	context := strings.Join(texts, "\n")
	return fmt.Sprintf(promptTemplate, context, query)
}
