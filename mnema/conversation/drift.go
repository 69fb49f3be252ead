package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/mnema-labs/mnema/mnema/config"
	"github.com/mnema-labs/mnema/mnema/retrieval"
)

// DriftEvent reports a detected topic shift.
type DriftEvent struct {
	TurnIndex int
	Distance  float64
	At        time.Time
}

// DriftDetector maintains an exponentially weighted centroid of recent
// turn embeddings and reports when a new turn moves past the configured
// cosine distance from it. Detection is advisory; the context manager
// decides what to do with an event.
type DriftDetector struct {
	config   *config.ContextConfig
	embedder retrieval.Embedder
	logger   zerolog.Logger

	mu       sync.Mutex
	centroid []float64
	observed int // turns folded into the centroid since the last reset
	events   int
	lastAt   time.Time
}

// NewDriftDetector creates a detector using the shared embedder.
func NewDriftDetector(cfg *config.ContextConfig, embedder retrieval.Embedder, logger zerolog.Logger) *DriftDetector {
	return &DriftDetector{
		config:   cfg,
		embedder: embedder,
		logger:   logger.With().Str("component", "drift").Logger(),
	}
}

// Observe folds one turn into the detector and reports whether it drifted
// away from the running centroid. The window must fill before any event
// fires so openers do not register as shifts.
func (d *DriftDetector) Observe(ctx context.Context, turnIndex int, text string) (*DriftEvent, error) {
	vectors, err := d.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	vec := vectors[0]

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.centroid == nil {
		d.centroid = append([]float64(nil), vec...)
		d.observed = 1
		return nil, nil
	}

	distance := 1.0 - cosine(d.centroid, vec)

	var event *DriftEvent
	if d.observed >= d.config.DriftWindow && distance > d.config.DriftThreshold {
		event = &DriftEvent{TurnIndex: turnIndex, Distance: distance, At: time.Now()}
		d.events++
		d.lastAt = event.At
		d.logger.Info().Int("turn", turnIndex).Float64("distance", distance).Msg("topic drift detected")

		// New topic: restart the centroid from the drifting turn
		d.centroid = append(d.centroid[:0], vec...)
		d.observed = 1
		return event, nil
	}

	// EWMA update pulls the centroid toward the new turn
	alpha := d.config.DriftDecay
	for i := range d.centroid {
		d.centroid[i] = (1-alpha)*d.centroid[i] + alpha*vec[i]
	}
	d.observed++
	return nil, nil
}

// Events returns how many drift events fired this session.
func (d *DriftDetector) Events() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events
}

// Reset clears the centroid, typically after a compression pass.
func (d *DriftDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.centroid = nil
	d.observed = 0
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
