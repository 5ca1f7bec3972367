// Package retrieval finds knowledge-base chunks for a query.
//
// Information Hiding:
// - Embedding backend hidden behind Embedder
// - Vector database wire format hidden behind Searcher
// - Chunk text resolution hidden behind ChunkLookup
// - Transport failures classified into the error taxonomy here
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sashabaranov/go-openai"

	"github.com/richinex/controlqa/llm"
	"github.com/richinex/controlqa/model"
)

// Embedder turns a query into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder on an existing client.
func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

// NewOllamaEmbedder creates an embedder against Ollama's OpenAI-compatible API.
func NewOllamaEmbedder(baseURL, model string) *OpenAIEmbedder {
	if model == "" {
		model = llm.ModelOllamaEmbeddingGemma
	}
	config := openai.DefaultConfig("ollama")
	config.BaseURL = llm.OllamaOpenAIBaseURL(baseURL)
	return NewOpenAIEmbedder(openai.NewClientWithConfig(config), model)
}

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classify("embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: %w: empty embedding", model.ErrBackendUnavailable)
	}
	return resp.Data[0].Embedding, nil
}

// classify wraps a transport error with its taxonomy sentinel.
func classify(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrBackendUnavailable, err)
}

var _ Embedder = (*OpenAIEmbedder)(nil)
