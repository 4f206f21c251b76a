package generate

import (
	"context"

	"github.com/openai/openai-go"
)

// CompletionRequest is one chat-completion call to the language-model
// backend.
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Completion is the backend's reply. Token counters are zero when the
// backend reports no usage statistics.
type Completion struct {
	Text             string
	TotalTokens      int64
	CompletionTokens int64
}

// Backend abstracts the language-model API so the Generator can be exercised
// against a stub. Retry policy, if any, belongs to the backend client; the
// Generator itself makes exactly one call per invocation.
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// OpenAIBackend implements Backend on the OpenAI chat completions API.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend wraps the shared OpenAI client.
func NewOpenAIBackend(client *openai.Client) *OpenAIBackend {
	return &OpenAIBackend{client: client}
}

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Model:       openai.ChatModel(req.Model),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
		TopP:        openai.Float(req.TopP),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errEmptyCompletion
	}

	return &Completion{
		Text:             resp.Choices[0].Message.Content,
		TotalTokens:      resp.Usage.TotalTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
