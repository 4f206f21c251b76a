package expand

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
)

// DefaultVariants is how many paraphrases the LLM strategy asks for.
const DefaultVariants = 3

// LLM paraphrases the query with a chat-completion call. On any backend
// failure it degrades to the original query alone instead of failing the
// retrieval request.
type LLM struct {
	client   *openai.Client
	model    string
	variants int
	logger   *slog.Logger
}

// NewLLM creates an LLM expander. variants <= 0 falls back to
// DefaultVariants; logger defaults to slog.Default().
func NewLLM(client *openai.Client, model string, variants int, logger *slog.Logger) *LLM {
	if variants <= 0 {
		variants = DefaultVariants
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{
		client:   client,
		model:    model,
		variants: variants,
		logger:   logger,
	}
}

// Expand implements Expander.
func (e *LLM) Expand(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf(`Rewrite the following search query as %d alternative phrasings that could surface additional relevant documents. Keep each variant short and self-contained.

Query: %s

Respond in JSON format:
{"variants": ["variant 1", "variant 2"]}`, e.variants, query)

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(e.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil || len(resp.Choices) == 0 {
		e.logger.Warn("Query expansion call failed, using original query", "error", err)
		return []string{query}, nil
	}

	var parsed struct {
		Variants []string `json:"variants"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		e.logger.Warn("Query expansion response unparseable, using original query", "error", err)
		return []string{query}, nil
	}

	return dedupe(append([]string{query}, parsed.Variants...)), nil
}
