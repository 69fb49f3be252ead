// Package provider defines the model-backend port. Inference lives behind
// this interface; nothing else in the module knows which backend answers.
package provider

import (
	"context"
)

// Message represents a single chat message sent to the model.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Request aggregates everything the provider needs to produce a completion.
type Request struct {
	System   string            // assembled system/developer instructions
	Messages []Message         // ordered chat history (already windowed)
	Meta     map[string]string // lightweight metadata for tracing
}

// Options controls sampling, limits, and determinism.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	TopP         float32
	Seed         int
	Stop         []string
	// TimeoutMs applies to the provider call only
	TimeoutMs int
}

// Usage captures token accounting reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text  string
	Raw   any    // raw provider payload for debugging
	Usage *Usage // optional usage information
}

// Chunk is the provider's streaming delta.
type Chunk struct {
	DeltaText string
	Done      bool
	Usage     *Usage // on final chunk when available
}

// Provider is the abstraction for all model backends. Cancelling the
// context cancels the in-flight call only; callers own any state rollback.
type Provider interface {
	Complete(ctx context.Context, req Request, opts Options) (Completion, error)
	Stream(ctx context.Context, req Request, opts Options) (<-chan Chunk, error)
}
