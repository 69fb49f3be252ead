package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// FlatDenseIndex implements DenseIndex using brute-force search over an
// in-memory table. This is the simplest implementation and serves as the
// baseline; the corpus of a single user's attached documents stays small
// enough for it.
type FlatDenseIndex struct {
	dimension int
	mu        sync.RWMutex

	vectors map[string][]float64 // chunkID -> embedding
	byDoc   map[string][]string  // docID -> chunkIDs
}

// NewFlatDenseIndex creates a new flat dense index.
func NewFlatDenseIndex(dimension int) *FlatDenseIndex {
	return &FlatDenseIndex{
		dimension: dimension,
		vectors:   make(map[string][]float64),
		byDoc:     make(map[string][]string),
	}
}

// Index adds chunk embeddings to the index.
func (f *FlatDenseIndex) Index(ctx context.Context, chunks []Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != f.dimension {
			return fmt.Errorf("vector dimension mismatch for chunk %s: expected %d, got %d",
				c.ChunkID, f.dimension, len(c.Embedding))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vectors == nil {
		return fmt.Errorf("dense index is closed")
	}
	for _, c := range chunks {
		if _, exists := f.vectors[c.ChunkID]; !exists {
			f.byDoc[c.ParentID] = append(f.byDoc[c.ParentID], c.ChunkID)
		}
		vec := make([]float64, len(c.Embedding))
		copy(vec, c.Embedding)
		f.vectors[c.ChunkID] = vec
	}
	return nil
}

// Query performs k-NN search using brute force over all stored vectors.
func (f *FlatDenseIndex) Query(ctx context.Context, query []float64, k int) ([]Hit, error) {
	if len(query) != f.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", f.dimension, len(query))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.vectors == nil {
		return nil, fmt.Errorf("dense index is closed")
	}

	type candidate struct {
		id       string
		distance float64
	}

	candidates := make([]candidate, 0, len(f.vectors))
	for id, vector := range f.vectors {
		distance := 1.0 - cosineSimilarity(query, vector)
		candidates = append(candidates, candidate{id: id, distance: distance})
	}

	// Sort by distance ascending, chunk ID as a stable tie-break
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].id < candidates[j].id
	})

	if k > len(candidates) {
		k = len(candidates)
	}

	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		// Convert distance to similarity score (higher is better)
		hits[i] = Hit{
			ChunkID: candidates[i].id,
			Score:   1.0 / (1.0 + candidates[i].distance),
		}
	}
	return hits, nil
}

// Delete removes every chunk of docID from the index.
func (f *FlatDenseIndex) Delete(ctx context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vectors == nil {
		return fmt.Errorf("dense index is closed")
	}
	for _, chunkID := range f.byDoc[docID] {
		delete(f.vectors, chunkID)
	}
	delete(f.byDoc, docID)
	return nil
}

// Close releases the in-memory tables.
func (f *FlatDenseIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = nil
	f.byDoc = nil
	return nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}
