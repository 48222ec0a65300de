package knowledge

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps documents and their embeddings in process and searches
// by brute-force cosine distance.
type MemoryStore struct {
	embed Embedder

	mu   sync.RWMutex
	docs []Document
	vecs [][]float32
	ids  map[string]struct{}
}

func NewMemoryStore(e Embedder) *MemoryStore {
	if e == nil {
		e = NewHashEmbedder(0)
	}
	return &MemoryStore{embed: e, ids: map[string]struct{}{}}
}

func (s *MemoryStore) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	s.mu.RLock()
	err := checkBatch(docs, func(id string) bool { _, ok := s.ids[id]; return ok })
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := s.embed.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("knowledge: embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return ErrDimension
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// re-check under the write lock; a concurrent Add may have won
	if err := checkBatch(docs, func(id string) bool { _, ok := s.ids[id]; return ok }); err != nil {
		return err
	}
	for i, d := range docs {
		s.docs = append(s.docs, d)
		s.vecs = append(s.vecs, vecs[i])
		s.ids[d.ID] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	q, err := embedOne(ctx, forQuery(s.embed), query)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}
	s.mu.RLock()
	cands := make([]scored, len(s.docs))
	for i, d := range s.docs {
		cands[i] = scored{doc: d, dist: cosineDistance(q, s.vecs[i])}
	}
	s.mu.RUnlock()
	return rank(cands, topK), nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *MemoryStore) Close() error { return nil }
