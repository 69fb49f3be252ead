//go:build llama && !no_llama

package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-skynet/go-llama.cpp"
)

// GGUFProvider serves completions from a local GGUF model (llama-specific).
type GGUFProvider struct {
	model *llama.LLama
	mu    sync.Mutex
}

// NewGGUFProvider loads the model at modelPath with the given context size.
func NewGGUFProvider(modelPath string, contextSize int) (*GGUFProvider, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("gguf provider: model path required")
	}
	if contextSize <= 0 {
		contextSize = 4096
	}
	model, err := llama.New(modelPath, llama.SetContext(contextSize))
	if err != nil {
		return nil, fmt.Errorf("gguf provider: failed to load model %s: %w", modelPath, err)
	}
	return &GGUFProvider{model: model}, nil
}

func (p *GGUFProvider) Complete(ctx context.Context, req Request, opts Options) (Completion, error) {
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	predictOpts := []llama.PredictOption{
		llama.SetTemperature(opts.Temperature),
		llama.SetRepeat(1),
	}
	if opts.MaxNewTokens > 0 {
		predictOpts = append(predictOpts, llama.SetTokens(opts.MaxNewTokens))
	}
	if opts.TopP > 0 {
		predictOpts = append(predictOpts, llama.SetTopP(opts.TopP))
	}
	if opts.Seed != 0 {
		predictOpts = append(predictOpts, llama.SetSeed(opts.Seed))
	}
	if len(opts.Stop) > 0 {
		predictOpts = append(predictOpts, llama.SetStopWords(opts.Stop...))
	}

	// llama.cpp contexts are not goroutine safe
	p.mu.Lock()
	text, err := p.model.Predict(flattenRequest(req), predictOpts...)
	p.mu.Unlock()
	if err != nil {
		return Completion{}, fmt.Errorf("gguf provider: prediction failed: %w", err)
	}
	return Completion{Text: strings.TrimSpace(text)}, nil
}

// Stream emits the whole completion as a single chunk; llama.cpp token
// callbacks are not exposed through this binding.
func (p *GGUFProvider) Stream(ctx context.Context, req Request, opts Options) (<-chan Chunk, error) {
	out := make(chan Chunk, 2)
	go func() {
		defer close(out)
		completion, err := p.Complete(ctx, req, opts)
		if err != nil {
			out <- Chunk{Done: true}
			return
		}
		out <- Chunk{DeltaText: completion.Text}
		out <- Chunk{Done: true, Usage: completion.Usage}
	}()
	return out, nil
}

// Close frees the underlying model.
func (p *GGUFProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model.Free()
	return nil
}

func flattenRequest(req Request) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	for _, m := range req.Messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant: ")
	return b.String()
}
