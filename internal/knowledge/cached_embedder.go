package knowledge

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultEmbedCacheSize = 1024

// CachedEmbedder memoizes embeddings by exact text. Only misses reach the
// inner embedder.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
	query *CachedEmbedder
}

// NewCachedEmbedder wraps inner. When inner embeds queries differently, the
// query side gets its own cache of the same size.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	c, err := newCached(inner, size)
	if err != nil {
		return nil, err
	}
	if q, ok := inner.(QueryEmbedder); ok {
		if c.query, err = newCached(q.QueryEmbedder(), size); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func newCached(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultEmbedCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// QueryEmbedder returns the query-side cache, or c itself.
func (c *CachedEmbedder) QueryEmbedder() Embedder {
	if c.query != nil {
		return c.query
	}
	return c
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missText []string
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missText) == 0 {
		return out, nil
	}
	vs, err := c.inner.Embed(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vs) != len(missText) {
		return nil, ErrDimension
	}
	for j, i := range missIdx {
		out[i] = vs[j]
		c.cache.Add(missText[j], vs[j])
	}
	return out, nil
}

// Len reports the number of cached embeddings.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
