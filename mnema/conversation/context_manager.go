package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mnema-labs/mnema/mnema/config"
	"github.com/mnema-labs/mnema/mnema/summarize"
	"github.com/mnema-labs/mnema/mnema/tokens"
)

// State is the context manager's lifecycle state.
type State string

const (
	StateLive        State = "LIVE"
	StateCompressing State = "COMPRESSING"
	StateArchived    State = "ARCHIVED"
)

// Trigger names what caused a compression span.
type Trigger string

const (
	TriggerThreshold Trigger = "threshold"
	TriggerDrift     Trigger = "drift"
	TriggerWaypoint  Trigger = "waypoint"
)

// CompressionSpan is a half-open-free inclusive range of turn indices
// scheduled for summarization. Consumed exactly once.
type CompressionSpan struct {
	StartTurn int
	EndTurn   int
	Trigger   Trigger
}

// Summarizer compresses a span of messages into an artifact.
type Summarizer interface {
	Summarize(ctx context.Context, span []summarize.Message, waypointNotes []string, prior *summarize.Artifact) (*summarize.Artifact, error)
}

// Band is the coarse pressure level reported in Status.
type Band string

const (
	BandNormal   Band = "normal"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// Status is a point-in-time report of the context window.
type Status struct {
	State           State
	CurrentTokens   int
	ContextWindow   int
	Percentage      float64
	Band            Band
	LiveTurns       int
	SummarizedTurns int
	DriftEvents     int
}

// Snapshot is a consistent view of the window for prompt assembly: either
// the artifact plus the turns after it, never a mix of old and new.
type Snapshot struct {
	Summary   *summarize.Artifact
	LiveTurns []Turn
}

// ErrArchived is returned for any mutation after the session ended.
var ErrArchived = errors.New("conversation: session is archived")

// ContextManager owns the turn window and the compression policy. Turns
// only accumulate; compression replaces a span of them with a summary
// artifact produced by a background worker. At most one span is in flight;
// triggers arriving meanwhile coalesce into a single re-evaluation once
// the worker finishes.
type ContextManager struct {
	config     *config.ContextConfig
	acct       *tokens.Accountant
	waypoints  *WaypointLedger
	drift      *DriftDetector
	summarizer Summarizer
	logger     zerolog.Logger

	mu                sync.Mutex
	state             State
	turns             []Turn
	summarizedThrough int // absolute index of the last compressed turn, -1 when none
	artifact          *summarize.Artifact
	inflight          *CompressionSpan
	reevaluate        bool

	work chan CompressionSpan
	wg   sync.WaitGroup
}

// NewContextManager creates a manager in LIVE state and starts its
// compression worker.
func NewContextManager(cfg *config.ContextConfig, acct *tokens.Accountant, waypoints *WaypointLedger, drift *DriftDetector, summarizer Summarizer, logger zerolog.Logger) *ContextManager {
	cm := &ContextManager{
		config:            cfg,
		acct:              acct,
		waypoints:         waypoints,
		drift:             drift,
		summarizer:        summarizer,
		logger:            logger.With().Str("component", "context_manager").Logger(),
		state:             StateLive,
		summarizedThrough: -1,
		work:              make(chan CompressionSpan, 1),
	}
	cm.wg.Add(1)
	go cm.worker()
	return cm
}

// AppendTurn adds one turn, observes drift for user turns, and evaluates
// the compression triggers. It returns the turn's absolute index.
func (cm *ContextManager) AppendTurn(ctx context.Context, role, text string) (int, error) {
	turn := NewTurn(role, text, cm.acct.CountMessage(text))

	cm.mu.Lock()
	if cm.state == StateArchived {
		cm.mu.Unlock()
		return 0, ErrArchived
	}
	cm.turns = append(cm.turns, turn)
	index := len(cm.turns) - 1
	cm.mu.Unlock()

	var driftEvent *DriftEvent
	if role == "user" && cm.drift != nil {
		event, err := cm.drift.Observe(ctx, index, text)
		if err != nil {
			cm.logger.Warn().Err(err).Msg("drift observation failed")
		} else {
			driftEvent = event
		}
	}

	cm.mu.Lock()
	cm.evaluateLocked(driftEvent)
	cm.mu.Unlock()
	return index, nil
}

// MarkWaypoint records a waypoint at turnIndex and re-evaluates triggers.
func (cm *ContextManager) MarkWaypoint(turnIndex int) (Waypoint, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.state == StateArchived {
		return Waypoint{}, ErrArchived
	}
	if turnIndex < 0 || turnIndex >= len(cm.turns) {
		return Waypoint{}, fmt.Errorf("waypoint index %d out of range", turnIndex)
	}
	wp := cm.waypoints.Add(turnIndex)
	cm.evaluateLocked(nil)
	return wp, nil
}

// TruncateAfter discards every turn after turnIndex, for regenerate-style
// history edits. Waypoints past the cut go with them. Turns already
// summarized away cannot be truncated, and an in-flight compression must
// land first so the artifact never describes turns that no longer exist.
func (cm *ContextManager) TruncateAfter(turnIndex int) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.state == StateArchived {
		return ErrArchived
	}
	if cm.state == StateCompressing {
		return fmt.Errorf("conversation: compression in flight, retry once it lands")
	}
	if turnIndex < cm.summarizedThrough {
		return fmt.Errorf("conversation: turns through %d are summarized and cannot be truncated", cm.summarizedThrough)
	}
	if turnIndex >= len(cm.turns)-1 {
		return nil
	}
	cm.turns = cm.turns[:turnIndex+1]
	cm.waypoints.ClearAfter(turnIndex)
	return nil
}

// Snapshot returns the current summary artifact and live turns as one
// consistent view.
func (cm *ContextManager) Snapshot() Snapshot {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	live := cm.turns[cm.summarizedThrough+1:]
	out := Snapshot{Summary: cm.artifact, LiveTurns: make([]Turn, len(live))}
	copy(out.LiveTurns, live)
	return out
}

// Status reports the window pressure.
func (cm *ContextManager) Status() Status {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	current := cm.currentTokensLocked()
	window := cm.acct.ContextWindow()
	pct := float64(current) / float64(window)

	band := BandNormal
	switch {
	case pct >= cm.config.CompressAt:
		band = BandCritical
	case pct >= cm.config.WarnAt:
		band = BandWarning
	}

	driftEvents := 0
	if cm.drift != nil {
		driftEvents = cm.drift.Events()
	}
	return Status{
		State:           cm.state,
		CurrentTokens:   current,
		ContextWindow:   window,
		Percentage:      pct,
		Band:            band,
		LiveTurns:       len(cm.turns) - 1 - cm.summarizedThrough,
		SummarizedTurns: cm.summarizedThrough + 1,
		DriftEvents:     driftEvents,
	}
}

// Turns returns a copy of every turn, summarized or live. Used by the
// archive on session close.
func (cm *ContextManager) Turns() []Turn {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	out := make([]Turn, len(cm.turns))
	copy(out, cm.turns)
	return out
}

// Close waits for any in-flight compression and moves to ARCHIVED.
func (cm *ContextManager) Close() {
	cm.mu.Lock()
	if cm.state == StateArchived {
		cm.mu.Unlock()
		return
	}
	cm.state = StateArchived
	cm.mu.Unlock()

	close(cm.work)
	cm.wg.Wait()
}

// currentTokensLocked is the artifact cost plus the live turns.
func (cm *ContextManager) currentTokensLocked() int {
	total := 0
	if cm.artifact != nil {
		total += cm.acct.Count(cm.artifact.Render())
	}
	for _, t := range cm.turns[cm.summarizedThrough+1:] {
		total += t.TokenCount
	}
	return total
}

// evaluateLocked checks the three triggers in priority order and schedules
// at most one span. While a span is in flight new triggers only mark the
// manager for re-evaluation.
func (cm *ContextManager) evaluateLocked(driftEvent *DriftEvent) {
	if cm.state != StateLive {
		if cm.state == StateCompressing {
			cm.reevaluate = true
		}
		return
	}

	span, ok := cm.pickSpanLocked(driftEvent)
	if !ok {
		return
	}

	cm.state = StateCompressing
	cm.inflight = &span
	cm.logger.Info().
		Int("start", span.StartTurn).Int("end", span.EndTurn).
		Str("trigger", string(span.Trigger)).
		Msg("compression scheduled")
	cm.work <- span
}

func (cm *ContextManager) pickSpanLocked(driftEvent *DriftEvent) (CompressionSpan, bool) {
	start := cm.summarizedThrough + 1
	last := len(cm.turns) - 1
	liveCount := last - start + 1

	// Token pressure compresses everything up to the triggering turn
	window := cm.acct.ContextWindow()
	if float64(cm.currentTokensLocked()) >= cm.config.CompressAt*float64(window) && liveCount > 0 {
		return CompressionSpan{StartTurn: start, EndTurn: last, Trigger: TriggerThreshold}, true
	}

	// Drift closes out the old topic, keeping the drifting turn live
	if driftEvent != nil {
		end := driftEvent.TurnIndex - 1
		if end-start+1 >= cm.config.MinSpan {
			return CompressionSpan{StartTurn: start, EndTurn: end, Trigger: TriggerDrift}, true
		}
	}

	// A waypoint old enough to leave MinKeep turns live compresses the
	// span through it
	if wp, ok := cm.waypoints.Boundary(len(cm.turns), cm.config.MinKeep); ok && wp.TurnIndex >= start {
		return CompressionSpan{StartTurn: start, EndTurn: wp.TurnIndex, Trigger: TriggerWaypoint}, true
	}

	return CompressionSpan{}, false
}

// worker is the single consumer of compression spans.
func (cm *ContextManager) worker() {
	defer cm.wg.Done()
	for span := range cm.work {
		cm.compress(span)
	}
}

func (cm *ContextManager) compress(span CompressionSpan) {
	cm.mu.Lock()
	msgs := make([]summarize.Message, 0, span.EndTurn-span.StartTurn+1)
	for _, t := range cm.turns[span.StartTurn : span.EndTurn+1] {
		msgs = append(msgs, summarize.Message{Role: t.Role, Text: t.Text})
	}
	var notes []string
	for _, wp := range cm.waypoints.Inside(span.StartTurn, span.EndTurn) {
		notes = append(notes, waypointNote(cm.turns[wp.TurnIndex]))
	}
	prior := cm.artifact
	cm.mu.Unlock()

	artifact, err := cm.summarizer.Summarize(context.Background(), msgs, notes, prior)

	cm.mu.Lock()
	cm.inflight = nil
	if cm.state == StateCompressing {
		cm.state = StateLive
	}
	if err != nil {
		// Fail safe: the span stays live, byte for byte
		cm.logger.Error().Err(err).Msg("compression failed, keeping original turns")
	} else {
		cm.artifact = artifact
		cm.summarizedThrough = span.EndTurn
		cm.waypoints.ClearThrough(span.EndTurn)
		if cm.drift != nil {
			cm.drift.Reset()
		}
		cm.logger.Info().Int("through", span.EndTurn).Msg("span compressed")
	}

	if cm.reevaluate && cm.state == StateLive {
		cm.reevaluate = false
		cm.evaluateLocked(nil)
	}
	cm.mu.Unlock()
}

func waypointNote(t Turn) string {
	const noteLimit = 120
	text := t.Text
	if len(text) > noteLimit {
		text = text[:noteLimit] + "..."
	}
	return text
}
