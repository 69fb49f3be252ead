package retrieval

import (
	"context"
	"hash/fnv"

	"gonum.org/v1/gonum/floats"
)

// HashEmbedder is a deterministic feature-hashing embedder. It needs no
// model assets, which makes it the default provider and the test fixture.
// Token features are hashed into a fixed-width vector with a signed trick
// to reduce collisions, then L2 normalized.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder with the given dimensionality.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Dimension() int { return e.dims }

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) embedOne(text string) []float64 {
	vec := make([]float64, e.dims)
	for _, term := range Tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(term))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		sign := 1.0
		if (sum>>63)&1 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}
	norm := floats.Norm(vec, 2)
	if norm > 0 {
		floats.Scale(1.0/norm, vec)
	}
	return vec
}
