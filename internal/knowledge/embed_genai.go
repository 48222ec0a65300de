package knowledge

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"
)

const DefaultGeminiEmbedModel = "gemini-embedding-001"

// GenAIEmbedder embeds with the Gemini embedding API. Documents and queries
// use different task types.
type GenAIEmbedder struct {
	client   *genai.Client
	model    string
	taskType string
}

func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (*GenAIEmbedder, error) {
	if model == "" {
		model = DefaultGeminiEmbedModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: genai client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: model, taskType: "RETRIEVAL_DOCUMENT"}, nil
}

func (e *GenAIEmbedder) Name() string { return "gemini:" + e.model }

// QueryEmbedder returns a copy that embeds with the retrieval-query task type.
func (e *GenAIEmbedder) QueryEmbedder() Embedder {
	cp := *e
	cp.taskType = "RETRIEVAL_QUERY"
	return &cp
}

func (e *GenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: e.taskType,
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: gemini embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("knowledge: gemini embed: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
