//go:build llama && !no_llama

package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-skynet/go-llama.cpp"
)

// LlamaEmbedder produces embeddings from a local GGUF model (llama-specific).
type LlamaEmbedder struct {
	model *llama.LLama
	dims  int
	mu    sync.Mutex
}

// NewLlamaEmbedder loads the GGUF model at modelPath in embedding mode.
func NewLlamaEmbedder(modelPath string, dims int) (*LlamaEmbedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("llama embedder: model path required")
	}
	model, err := llama.New(modelPath, llama.EnableEmbeddings, llama.SetContext(2048))
	if err != nil {
		return nil, fmt.Errorf("llama embedder: failed to load model %s: %w", modelPath, err)
	}
	return &LlamaEmbedder{model: model, dims: dims}, nil
}

func (e *LlamaEmbedder) Dimension() int { return e.dims }

func (e *LlamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// llama.cpp contexts are not goroutine safe
		e.mu.Lock()
		raw, err := e.model.Embeddings(text)
		e.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("llama embedder: embedding failed: %w", err)
		}
		vec := make([]float64, len(raw))
		for j, v := range raw {
			vec[j] = float64(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Close frees the underlying model.
func (e *LlamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model.Free()
	return nil
}
