package conversation

import (
	"regexp"
	"sync"
)

// intentPatterns map each mode to the phrasings that signal it. A turn can
// match several modes; the strongest match wins.
var intentPatterns = map[IntentMode][]*regexp.Regexp{
	IntentAnalysis: {
		regexp.MustCompile(`(?i)\b(why|explain|compare|difference|analy[sz]e|evaluate|trade.?offs?)\b`),
		regexp.MustCompile(`(?i)\b(pros and cons|root cause|break.? ?down)\b`),
	},
	IntentDrafting: {
		regexp.MustCompile(`(?i)\b(write|draft|compose|reword|rephrase|shorten|expand)\b`),
		regexp.MustCompile(`(?i)\b(email|blog post|summary|outline|paragraph|bullet points)\b`),
	},
	IntentAdversarial: {
		regexp.MustCompile(`(?i)\b(wrong|incorrect|that.s not|disagree|are you sure|prove it)\b`),
		regexp.MustCompile(`(?i)\b(challenge|push back|devil.s advocate)\b`),
	},
	IntentExploration: {
		regexp.MustCompile(`(?i)\b(what if|tell me about|curious|wonder|explore|brainstorm)\b`),
	},
}

// IntentTracker infers the user's working mode from keyword heuristics.
// Confidence decays toward the exploration baseline on quiet turns. The
// signal is structurally isolated: only the prompt assembler consumes it,
// as a low-priority tone hint.
type IntentTracker struct {
	decay float64

	mu      sync.Mutex
	current IntentSignal
}

// NewIntentTracker creates a tracker starting in exploration mode.
func NewIntentTracker(decay float64) *IntentTracker {
	return &IntentTracker{
		decay:   decay,
		current: IntentSignal{Mode: IntentExploration, Confidence: 0.3},
	}
}

// ObserveTurn updates the estimate from one user message and returns the
// new signal.
func (t *IntentTracker) ObserveTurn(text string) IntentSignal {
	// Fixed evaluation order keeps ties deterministic
	order := []IntentMode{IntentAdversarial, IntentDrafting, IntentAnalysis, IntentExploration}

	bestMode := IntentMode("")
	bestMatches := 0
	for _, mode := range order {
		matches := 0
		for _, re := range intentPatterns[mode] {
			matches += len(re.FindAllString(text, -1))
		}
		if matches > bestMatches {
			bestMode = mode
			bestMatches = matches
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if bestMatches > 0 {
		confidence := 0.3 + float64(bestMatches)*0.2
		if confidence > 0.9 {
			confidence = 0.9
		}
		t.current = IntentSignal{Mode: bestMode, Confidence: confidence}
		return t.current
	}

	// No signal this turn: decay toward the exploration baseline
	t.current.Confidence -= t.decay
	if t.current.Confidence <= 0.3 {
		t.current = IntentSignal{Mode: IntentExploration, Confidence: 0.3}
	}
	return t.current
}

// Current returns the present estimate without observing anything.
func (t *IntentTracker) Current() IntentSignal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
