// Package conversation holds the live-session state: the turn window, the
// waypoint ledger, drift detection, intent tracking, and the context
// manager that decides when a span of turns is compressed into a summary
// artifact.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one message in the conversation. Immutable once appended.
type Turn struct {
	ID         string
	Role       string // "user" or "assistant"
	Text       string
	TokenCount int
	CreatedAt  time.Time
}

// NewTurn creates a turn with a fresh id.
func NewTurn(role, text string, tokenCount int) Turn {
	return Turn{
		ID:         uuid.NewString(),
		Role:       role,
		Text:       text,
		TokenCount: tokenCount,
		CreatedAt:  time.Now(),
	}
}

// IntentMode classifies what the user is currently doing.
type IntentMode string

const (
	IntentExploration IntentMode = "exploration"
	IntentAnalysis    IntentMode = "analysis"
	IntentDrafting    IntentMode = "drafting"
	IntentAdversarial IntentMode = "adversarial"
)

// IntentSignal is the tracker's current estimate. It is handed to the
// prompt assembler only; retrieval and the context manager never see it.
type IntentSignal struct {
	Mode       IntentMode
	Confidence float64
}
