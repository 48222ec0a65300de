// Package knowledge holds the PSADT documentation corpus used for
// retrieval: documents, embedders, vector stores, a directory indexer and
// the silent-switch catalog.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrDuplicateID = errors.New("knowledge: duplicate document id")
	ErrDimension   = errors.New("knowledge: embedding dimension mismatch")
)

const DefaultTopK = 8

type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Filename is the source label shown in prompts and rag_sources.
func (d Document) Filename() string {
	if f := d.Metadata["filename"]; f != "" {
		return f
	}
	return "Unknown"
}

// SearchResult pairs a document with its similarity score. Higher is
// more relevant.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Retriever is what generation needs from the corpus. Results are ordered
// by descending relevance.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]SearchResult, error)
}

// Store is a Retriever that can also be loaded.
type Store interface {
	Retriever
	// Add rejects the whole batch with ErrDuplicateID if any id is already
	// stored or repeated within docs.
	Add(ctx context.Context, docs ...Document) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// ScoreFromDistance converts a vector distance into a similarity score.
// Distances up to 1 map linearly, larger ones decay as 1/(1+d). Negative,
// NaN and infinite distances score 0.
func ScoreFromDistance(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	if d <= 1 {
		return 1 - d
	}
	return 1 / (1 + d)
}

// Sources returns the filename of each result in order.
func Sources(results []SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Document.Filename())
	}
	return out
}

func checkBatch(docs []Document, exists func(id string) bool) error {
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if seen[d.ID] || exists(d.ID) {
			return fmt.Errorf("%w: %q", ErrDuplicateID, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}
