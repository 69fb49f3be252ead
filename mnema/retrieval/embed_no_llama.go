//go:build !llama || no_llama

package retrieval

import (
	"context"
	"fmt"
	"sync"
)

var llamaNotAvailable = fmt.Errorf("llama.cpp not available in this build")

// LlamaEmbedder produces embeddings from a local GGUF model (no-op for non-CGO builds).
type LlamaEmbedder struct {
	dims int
	mu   sync.Mutex
}

// NewLlamaEmbedder reports the missing build tag (no-op).
func NewLlamaEmbedder(modelPath string, dims int) (*LlamaEmbedder, error) {
	return nil, llamaNotAvailable
}

func (e *LlamaEmbedder) Dimension() int { return e.dims }

func (e *LlamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, llamaNotAvailable
}

// Close is a no-op.
func (e *LlamaEmbedder) Close() error { return nil }
