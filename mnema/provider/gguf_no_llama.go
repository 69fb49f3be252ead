//go:build !llama || no_llama

package provider

import (
	"context"
	"fmt"
)

var llamaNotAvailable = fmt.Errorf("llama.cpp not available in this build")

// GGUFProvider serves completions from a local GGUF model (no-op for non-CGO builds).
type GGUFProvider struct{}

// NewGGUFProvider reports the missing build tag (no-op).
func NewGGUFProvider(modelPath string, contextSize int) (*GGUFProvider, error) {
	return nil, llamaNotAvailable
}

func (p *GGUFProvider) Complete(ctx context.Context, req Request, opts Options) (Completion, error) {
	return Completion{}, llamaNotAvailable
}

func (p *GGUFProvider) Stream(ctx context.Context, req Request, opts Options) (<-chan Chunk, error) {
	return nil, llamaNotAvailable
}

// Close is a no-op.
func (p *GGUFProvider) Close() error { return nil }
