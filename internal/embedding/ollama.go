package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Compile-time interface check
var _ Embedder = (*Ollama)(nil)

// Ollama implements the embedding service against a local Ollama server
// through langchaingo.
type Ollama struct {
	embedder embeddings.Embedder
	model    string
}

// NewOllama creates an embedder for the given Ollama server and model.
func NewOllama(serverURL, model string) (*Ollama, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return newOllama(llm, model)
}

func newOllama(client embeddings.EmbedderClient, model string) (*Ollama, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &Ollama{embedder: embedder, model: model}, nil
}

// Embed generates an embedding for the given text
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding, err := o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		if isNetworkError(err) {
			return nil, fmt.Errorf("embedding generation failed: %w: %w", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding generation failed: no data returned")
	}
	return embedding, nil
}

// ModelName returns the embedding model name
func (o *Ollama) ModelName() string {
	return o.model
}
