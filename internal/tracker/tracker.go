// Package tracker turns a stream of (position, time) samples into a
// velocity estimate and edge-crossing events, per spec.md §4.2. It has no
// reference to display state: boundary_detect is a pure function of a
// position, a screen geometry, and the two threshold parameters.
package tracker

import (
	"time"

	"github.com/tx2tx/tx2tx/internal/geometry"
)

// HistorySize is the fixed ring size, POSITION_HISTORY_SIZE in spec.md §3.
const HistorySize = 5

// MinSamplesForVelocity is the minimum sample count before velocity_get
// returns anything but zero.
const MinSamplesForVelocity = 2

// Transition is raised when the pointer touches an outer edge with
// sufficient velocity.
type Transition struct {
	Direction geometry.Direction
	Position  geometry.Position
}

type sample struct {
	pos geometry.Position
	t   time.Time
}

// Tracker is a fixed-size ring of pointer samples plus the pure edge
// detector built on top of it.
type Tracker struct {
	samples [HistorySize]sample
	count   int
	next    int // index to overwrite next
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// SamplePush records a new (position, time) sample, overwriting the oldest
// of the ring's HistorySize slots. O(1).
func (t *Tracker) SamplePush(pos geometry.Position, at time.Time) {
	t.samples[t.next] = sample{pos: pos, t: at}
	t.next = (t.next + 1) % HistorySize
	if t.count < HistorySize {
		t.count++
	}
}

// Reset clears the ring. Called immediately after any warp and after every
// context change, so the warp itself is never seen as high-velocity motion.
func (t *Tracker) Reset() {
	*t = Tracker{}
}

// oldestAndNewest returns the oldest and newest recorded samples. Only
// valid when t.count >= 2.
func (t *Tracker) oldestAndNewest() (oldest, newest sample) {
	// next points at the slot that will be overwritten next, i.e. the
	// oldest sample when the ring is full; when not yet full, the oldest
	// sample is at index 0.
	if t.count < HistorySize {
		oldest = t.samples[0]
	} else {
		oldest = t.samples[t.next]
	}
	newestIdx := (t.next - 1 + HistorySize) % HistorySize
	newest = t.samples[newestIdx]
	return oldest, newest
}

// VelocityGet returns the Manhattan distance between the oldest and newest
// samples divided by their time delta, in pixels/second. Returns 0 if
// fewer than MinSamplesForVelocity samples exist or the time delta is zero.
func (t *Tracker) VelocityGet() float64 {
	if t.count < MinSamplesForVelocity {
		return 0
	}
	oldest, newest := t.oldestAndNewest()
	dt := newest.t.Sub(oldest.t).Seconds()
	if dt <= 0 {
		return 0
	}
	dx := abs(newest.pos.X - oldest.pos.X)
	dy := abs(newest.pos.Y - oldest.pos.Y)
	return float64(dx+dy) / dt
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// BoundaryDetect returns a Transition iff pos is within edgeThreshold
// pixels of an outer edge of geom and the tracker's current velocity is at
// least velThreshold. Edge tests are inclusive; in a corner, horizontal
// edges (TOP/BOTTOM) take precedence over vertical (LEFT/RIGHT).
func (t *Tracker) BoundaryDetect(pos geometry.Position, geom geometry.ScreenGeometry, velThreshold, edgeThreshold float64) (Transition, bool) {
	dir, ok := edgeAt(pos, geom, edgeThreshold)
	if !ok {
		return Transition{}, false
	}
	if t.VelocityGet() < velThreshold {
		return Transition{}, false
	}
	return Transition{Direction: dir, Position: pos}, true
}

// edgeAt is the pure geometric half of BoundaryDetect, split out so the
// return-transition check in the forwarder can reuse it without touching
// velocity.
func edgeAt(pos geometry.Position, geom geometry.ScreenGeometry, edgeThreshold float64) (geometry.Direction, bool) {
	threshold := int(edgeThreshold)
	top := pos.Y <= threshold
	bottom := pos.Y >= geom.Height-1-threshold
	left := pos.X <= threshold
	right := pos.X >= geom.Width-1-threshold

	// Horizontal edges take precedence over vertical in a corner.
	switch {
	case top:
		return geometry.Top, true
	case bottom:
		return geometry.Bottom, true
	case left:
		return geometry.Left, true
	case right:
		return geometry.Right, true
	default:
		return geometry.DirectionNone, false
	}
}

// EdgeAt exposes the pure geometric edge test for callers (the forwarder's
// return-edge check) that need it without a velocity gate attached.
func EdgeAt(pos geometry.Position, geom geometry.ScreenGeometry, edgeThreshold float64) (geometry.Direction, bool) {
	return edgeAt(pos, geom, edgeThreshold)
}
