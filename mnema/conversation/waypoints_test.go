package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaypointLedgerOrderedAndDeduplicated(t *testing.T) {
	l := NewWaypointLedger()

	l.Add(10)
	l.Add(3)
	first := l.Add(7)
	again := l.Add(7)

	assert.Equal(t, first, again)
	require.Equal(t, 3, l.Len())

	wps := l.List()
	assert.Equal(t, 3, wps[0].TurnIndex)
	assert.Equal(t, 7, wps[1].TurnIndex)
	assert.Equal(t, 10, wps[2].TurnIndex)
}

func TestWaypointLedgerClearAfter(t *testing.T) {
	l := NewWaypointLedger()
	l.Add(2)
	l.Add(5)
	l.Add(9)

	l.ClearAfter(5)

	wps := l.List()
	require.Len(t, wps, 2)
	assert.Equal(t, 2, wps[0].TurnIndex)
	assert.Equal(t, 5, wps[1].TurnIndex)
}

func TestWaypointLedgerClearThrough(t *testing.T) {
	l := NewWaypointLedger()
	l.Add(2)
	l.Add(5)
	l.Add(9)

	l.ClearThrough(5)

	wps := l.List()
	require.Len(t, wps, 1)
	assert.Equal(t, 9, wps[0].TurnIndex)
}

func TestWaypointBoundaryLeavesMinKeep(t *testing.T) {
	l := NewWaypointLedger()
	l.Add(3)
	l.Add(8)

	// 10 turns, keep 4: only the waypoint at 3 leaves enough live turns
	wp, ok := l.Boundary(10, 4)
	require.True(t, ok)
	assert.Equal(t, 3, wp.TurnIndex)

	// 13 turns: now the waypoint at 8 qualifies too and wins as newest
	wp, ok = l.Boundary(13, 4)
	require.True(t, ok)
	assert.Equal(t, 8, wp.TurnIndex)

	_, ok = l.Boundary(5, 4)
	assert.False(t, ok)
}

func TestWaypointInside(t *testing.T) {
	l := NewWaypointLedger()
	l.Add(1)
	l.Add(4)
	l.Add(8)

	inside := l.Inside(2, 8)
	require.Len(t, inside, 2)
	assert.Equal(t, 4, inside[0].TurnIndex)
	assert.Equal(t, 8, inside[1].TurnIndex)
}
