// Package tokens provides deterministic token accounting for model profiles.
package tokens

import (
	"errors"
	"fmt"

	"github.com/mnema-labs/mnema/mnema/config"
)

// ErrConfiguration indicates a malformed or missing model profile. It is
// raised at construction time so callers never discover a bad profile in
// the middle of a conversation.
var ErrConfiguration = errors.New("token accountant: invalid model profile")

// Accountant estimates token counts for a single model profile. Counting is
// pure: same input, same count, no I/O.
type Accountant struct {
	modelID string
	profile config.ModelProfile
}

// NewAccountant validates the profile for modelID and returns an Accountant
// bound to it.
func NewAccountant(modelID string, profile config.ModelProfile) (*Accountant, error) {
	if modelID == "" {
		return nil, fmt.Errorf("%w: empty model id", ErrConfiguration)
	}
	if profile.ContextWindow <= 0 {
		return nil, fmt.Errorf("%w: model %q has context window %d", ErrConfiguration, modelID, profile.ContextWindow)
	}
	if profile.CharsPerToken <= 0 {
		return nil, fmt.Errorf("%w: model %q has chars-per-token %v", ErrConfiguration, modelID, profile.CharsPerToken)
	}
	if profile.MessageOverhead < 0 || profile.PromptOverhead < 0 {
		return nil, fmt.Errorf("%w: model %q has negative overhead", ErrConfiguration, modelID)
	}
	return &Accountant{modelID: modelID, profile: profile}, nil
}

// ModelID returns the model identifier this accountant was built for.
func (a *Accountant) ModelID() string { return a.modelID }

// ContextWindow returns the model's total token window.
func (a *Accountant) ContextWindow() int { return a.profile.ContextWindow }

// Count estimates the token count of a single piece of text.
func (a *Accountant) Count(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text)) / a.profile.CharsPerToken)
	if n < 1 {
		n = 1
	}
	return n
}

// CountMessage estimates the cost of text sent as one chat message,
// including the per-message overhead.
func (a *Accountant) CountMessage(text string) int {
	return a.Count(text) + a.profile.MessageOverhead
}

// CountMessages estimates the total cost of a message sequence, including
// the fixed prompt overhead.
func (a *Accountant) CountMessages(texts []string) int {
	total := a.profile.PromptOverhead
	for _, t := range texts {
		total += a.CountMessage(t)
	}
	return total
}

// Registry holds validated accountants keyed by model identifier.
type Registry struct {
	accountants map[string]*Accountant
}

// NewRegistry builds accountants for every configured profile. A single bad
// profile fails the whole registry.
func NewRegistry(cfg config.ModelsConfig) (*Registry, error) {
	reg := &Registry{accountants: make(map[string]*Accountant, len(cfg.Profiles))}
	for id, profile := range cfg.Profiles {
		acct, err := NewAccountant(id, profile)
		if err != nil {
			return nil, err
		}
		reg.accountants[id] = acct
	}
	return reg, nil
}

// ProfileFor returns the accountant for modelID.
func (r *Registry) ProfileFor(modelID string) (*Accountant, error) {
	acct, ok := r.accountants[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: model %q not configured", ErrConfiguration, modelID)
	}
	return acct, nil
}
