package archive

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
	"google.golang.org/genai"
)

// DefaultEmbeddingModel is used when no embedding model is configured.
const DefaultEmbeddingModel = "gemini-embedding-001"

// NewGeminiEmbedding returns an embedding function backed by the Gemini
// API. Returns an error when no API key is provided.
func NewGeminiEmbedding(ctx context.Context, apiKey, model string) (chromem.EmbeddingFunc, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embedding requires an API key")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := client.Models.EmbedContent(ctx, model, genai.Text(text), nil)
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
			return nil, fmt.Errorf("empty embedding from %s", model)
		}
		return resp.Embeddings[0].Values, nil
	}, nil
}
