package knowledge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultOllamaHost       = "http://localhost:11434"
	DefaultOllamaEmbedModel = "nomic-embed-text"
	// Longer inputs are truncated before embedding.
	ollamaMaxChars = 2048
)

// OllamaEmbedder embeds through a local Ollama server, one text per call.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

func NewOllamaEmbedder(host, model string) (*OllamaEmbedder, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultOllamaEmbedModel
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("knowledge: invalid ollama host %q: %w", host, err)
	}
	return &OllamaEmbedder{
		client: api.NewClient(u, &http.Client{Timeout: 30 * time.Second}),
		model:  model,
	}, nil
}

func (e *OllamaEmbedder) Name() string { return "ollama:" + e.model }

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if len(t) > ollamaMaxChars {
			t = t[:ollamaMaxChars]
		}
		resp, err := e.client.Embeddings(ctx, &api.EmbeddingRequest{Model: e.model, Prompt: t})
		if err != nil {
			return nil, fmt.Errorf("knowledge: ollama embed: %w", err)
		}
		v := make([]float32, len(resp.Embedding))
		for i, x := range resp.Embedding {
			v[i] = float32(x)
		}
		out = append(out, v)
	}
	return out, nil
}
