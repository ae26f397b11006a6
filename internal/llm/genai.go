package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/finbrain/finbrain/internal/metrics"
)

// GenAIEmbedder produces embeddings with Google's Gemini API.
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	taskType   string
	dimensions int32
}

// NewGenAIEmbedder creates an embedder. taskType is a Gemini task type such
// as RETRIEVAL_DOCUMENT; an empty value means SEMANTIC_SIMILARITY.
func NewGenAIEmbedder(ctx context.Context, apiKey, model, taskType string, dimensions int) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GenAIEmbedder{
		client:     client,
		model:      model,
		taskType:   taskType,
		dimensions: int32(dimensions),
	}, nil
}

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimensions > 0 {
		dims := e.dimensions
		cfg.OutputDimensionality = &dims
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("embedding", "error").Inc()
		return nil, fmt.Errorf("genai embed: %v: %w", err, ErrProvider)
	}
	if len(result.Embeddings) == 0 {
		metrics.LLMCallsTotal.WithLabelValues("embedding", "error").Inc()
		return nil, fmt.Errorf("genai returned no embeddings: %w", ErrProvider)
	}

	metrics.LLMCallsTotal.WithLabelValues("embedding", "success").Inc()
	return result.Embeddings[0].Values, nil
}
