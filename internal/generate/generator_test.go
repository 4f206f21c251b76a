package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/paper-rag/internal/retriever"
	"github.com/bull/paper-rag/internal/storage"
)

// stubBackend records the last request and replies with a canned completion
// or error.
type stubBackend struct {
	lastReq    CompletionRequest
	calls      int
	completion *Completion
	err        error
}

func (s *stubBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.completion, nil
}

func results(texts ...string) []retriever.Result {
	out := make([]retriever.Result, len(texts))
	for i, text := range texts {
		out[i] = retriever.Result{
			Chunk:      storage.Chunk{ID: int64(i + 1), Text: text},
			Similarity: 1 - float64(i)*0.1,
		}
	}
	return out
}

func TestGenerate_ContextPreservesOrder(t *testing.T) {
	stub := &stubBackend{completion: &Completion{Text: "answer"}}
	g := New(stub, "gpt-4o-mini", Options{MaxTokens: 200, Temperature: 0.7, TopP: 1}, nil)

	g.Generate(context.Background(), "q", results("first chunk", "second chunk", "third chunk"), Options{})

	// The assembled context concatenates chunk texts in exactly the order
	// supplied by the retriever.
	assert.Contains(t, stub.lastReq.Prompt, "Context: first chunk\nsecond chunk\nthird chunk\n")

	idxA := strings.Index(stub.lastReq.Prompt, "first chunk")
	idxB := strings.Index(stub.lastReq.Prompt, "second chunk")
	idxC := strings.Index(stub.lastReq.Prompt, "third chunk")
	assert.True(t, idxA < idxB && idxB < idxC, "Context order must match input order")
}

func TestGenerate_SuccessWithUsage(t *testing.T) {
	stub := &stubBackend{completion: &Completion{
		Text:             "grounded answer",
		TotalTokens:      120,
		CompletionTokens: 40,
	}}
	g := New(stub, "gpt-4o-mini", Options{MaxTokens: 200, Temperature: 0.7, TopP: 1}, nil)

	resp := g.Generate(context.Background(), "q", results("A"), Options{})

	assert.Equal(t, "grounded answer", resp.Response)
	require.NotNil(t, resp.TokensPerSecond)
	assert.InDelta(t, 3.0, *resp.TokensPerSecond, 1e-9)
	assert.Equal(t, 1, stub.calls, "Exactly one backend call per generate")
}

func TestGenerate_SuccessWithoutUsage(t *testing.T) {
	stub := &stubBackend{completion: &Completion{Text: "answer"}}
	g := New(stub, "gpt-4o-mini", Options{}, nil)

	resp := g.Generate(context.Background(), "q", results("A"), Options{})

	assert.Equal(t, "answer", resp.Response)
	assert.Nil(t, resp.TokensPerSecond, "Usage metric is never invented")
}

func TestGenerate_BackendFailureReturnsErrorResponse(t *testing.T) {
	stub := &stubBackend{err: errors.New("401 unauthorized")}
	g := New(stub, "gpt-4o-mini", Options{}, nil)

	resp := g.Generate(context.Background(), "q", results("A"), Options{})

	assert.True(t, strings.HasPrefix(resp.Response, ErrorPrefix),
		"Failed generation must return an error-marked response, got %q", resp.Response)
	assert.Nil(t, resp.TokensPerSecond)
}

func TestGenerate_TimeoutSameFallbackShape(t *testing.T) {
	stub := &stubBackend{err: fmt.Errorf("request: %w", context.DeadlineExceeded)}
	g := New(stub, "gpt-4o-mini", Options{}, nil)

	resp := g.Generate(context.Background(), "q", results("A"), Options{})

	assert.True(t, strings.HasPrefix(resp.Response, ErrorPrefix))
	assert.Nil(t, resp.TokensPerSecond)
}

func TestGenerate_EmptyChunksIsValid(t *testing.T) {
	stub := &stubBackend{completion: &Completion{Text: "from the query alone"}}
	g := New(stub, "gpt-4o-mini", Options{}, nil)

	resp := g.Generate(context.Background(), "q", nil, Options{})

	assert.Equal(t, "from the query alone", resp.Response)
	assert.Contains(t, stub.lastReq.Prompt, "Context: \n", "Context block is empty, not missing")
}

func TestGenerate_OptionsOverrideDefaults(t *testing.T) {
	stub := &stubBackend{completion: &Completion{Text: "a"}}
	g := New(stub, "gpt-4o-mini", Options{MaxTokens: 200, Temperature: 0.7, TopP: 1}, nil)

	g.Generate(context.Background(), "q", nil, Options{MaxTokens: 50, Temperature: 0.2})

	assert.Equal(t, 50, stub.lastReq.MaxTokens)
	assert.InDelta(t, 0.2, stub.lastReq.Temperature, 1e-9)
	assert.InDelta(t, 1.0, stub.lastReq.TopP, 1e-9, "Unset option falls back to default")
	assert.Equal(t, "gpt-4o-mini", stub.lastReq.Model)
}
