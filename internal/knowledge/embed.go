package knowledge

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Embedder turns texts into vectors. Implementations return one vector per
// input, in order.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder is implemented by embedders that encode search queries
// differently from documents.
type QueryEmbedder interface {
	QueryEmbedder() Embedder
}

func forQuery(e Embedder) Embedder {
	if q, ok := e.(QueryEmbedder); ok {
		return q.QueryEmbedder()
	}
	return e
}

const DefaultHashDimensions = 512

// HashEmbedder is a deterministic bag-of-words embedder using the hashing
// trick. It needs no model and is used offline and in tests.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Name() string { return "hash" }

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}
	normalize(v)
	return v
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

// cosineDistance is 1 - cos(a, b), in [0, 2]. Zero vectors and mismatched
// lengths yield NaN, which scores 0.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	return clampDistance(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// clampDistance absorbs rounding that pushes identical vectors below 0.
func clampDistance(d float64) float64 {
	if d < 0 && d > -1e-6 {
		return 0
	}
	return d
}

type scored struct {
	doc  Document
	dist float64
}

// rank orders candidates by ascending distance, ties by id, and converts
// the first topK into results.
func rank(cands []scored, topK int) []SearchResult {
	sort.SliceStable(cands, func(i, j int) bool {
		di, dj := orInf(cands[i].dist), orInf(cands[j].dist)
		if di != dj {
			return di < dj
		}
		return cands[i].doc.ID < cands[j].doc.ID
	})
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(cands) > topK {
		cands = cands[:topK]
	}
	out := make([]SearchResult, 0, len(cands))
	for _, c := range cands {
		out = append(out, SearchResult{Document: c.doc, Score: ScoreFromDistance(c.dist)})
	}
	return out
}

func orInf(d float64) float64 {
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}

func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vs) != 1 {
		return nil, ErrDimension
	}
	return vs[0], nil
}
