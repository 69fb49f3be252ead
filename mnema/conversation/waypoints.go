package conversation

import (
	"sort"
	"sync"
	"time"
)

// Waypoint marks a turn the user flagged as a topical boundary.
type Waypoint struct {
	TurnIndex int
	CreatedAt time.Time
}

// WaypointLedger is the append-only, ordered set of waypoints for one
// session. Entries are only removed when the turns they point at have been
// summarized away.
type WaypointLedger struct {
	mu        sync.RWMutex
	waypoints []Waypoint
	now       func() time.Time
}

// NewWaypointLedger creates an empty ledger.
func NewWaypointLedger() *WaypointLedger {
	return &WaypointLedger{now: time.Now}
}

// Add records a waypoint at turnIndex. Adding an index that already exists
// returns the existing waypoint; the ledger stays ordered by turn index
// whichever order the user marks turns in.
func (l *WaypointLedger) Add(turnIndex int) Waypoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, wp := range l.waypoints {
		if wp.TurnIndex == turnIndex {
			return wp
		}
	}
	wp := Waypoint{TurnIndex: turnIndex, CreatedAt: l.now()}
	l.waypoints = append(l.waypoints, wp)
	sort.Slice(l.waypoints, func(i, j int) bool {
		return l.waypoints[i].TurnIndex < l.waypoints[j].TurnIndex
	})
	return wp
}

// List returns the waypoints ordered by turn index.
func (l *WaypointLedger) List() []Waypoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Waypoint, len(l.waypoints))
	copy(out, l.waypoints)
	return out
}

// Len returns the number of waypoints.
func (l *WaypointLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.waypoints)
}

// ClearAfter removes every waypoint past turnIndex. Used when the session
// is forked or rolled back to an earlier turn.
func (l *WaypointLedger) ClearAfter(turnIndex int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.waypoints[:0]
	for _, wp := range l.waypoints {
		if wp.TurnIndex <= turnIndex {
			kept = append(kept, wp)
		}
	}
	l.waypoints = kept
}

// ClearThrough removes every waypoint at or below turnIndex, once the
// turns they mark have been summarized away.
func (l *WaypointLedger) ClearThrough(turnIndex int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.waypoints[:0]
	for _, wp := range l.waypoints {
		if wp.TurnIndex > turnIndex {
			kept = append(kept, wp)
		}
	}
	l.waypoints = kept
}

// Boundary returns the newest waypoint that still leaves minKeep turns
// live out of totalTurns, and whether one exists.
func (l *WaypointLedger) Boundary(totalTurns, minKeep int) (Waypoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	limit := totalTurns - minKeep
	for i := len(l.waypoints) - 1; i >= 0; i-- {
		if l.waypoints[i].TurnIndex <= limit {
			return l.waypoints[i], true
		}
	}
	return Waypoint{}, false
}

// Inside returns the waypoints whose turn index falls in [start, end].
func (l *WaypointLedger) Inside(start, end int) []Waypoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Waypoint
	for _, wp := range l.waypoints {
		if wp.TurnIndex >= start && wp.TurnIndex <= end {
			out = append(out, wp)
		}
	}
	return out
}
