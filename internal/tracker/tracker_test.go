package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tx2tx/tx2tx/internal/geometry"
)

var geom = geometry.ScreenGeometry{Width: 1920, Height: 1080}

func TestVelocityZeroWithFewerThanTwoSamples(t *testing.T) {
	tr := New()
	assert.Equal(t, 0.0, tr.VelocityGet())
	tr.SamplePush(geometry.Position{X: 10, Y: 10}, time.Unix(0, 0))
	assert.Equal(t, 0.0, tr.VelocityGet())
}

func TestVelocityManhattanOverTime(t *testing.T) {
	tr := New()
	base := time.Unix(0, 0)
	tr.SamplePush(geometry.Position{X: 960, Y: 540}, base)
	tr.SamplePush(geometry.Position{X: 100, Y: 540}, base.Add(20*time.Millisecond))
	tr.SamplePush(geometry.Position{X: 0, Y: 540}, base.Add(40*time.Millisecond))

	// oldest=(960,540)@0, newest=(0,540)@40ms => manhattan 960 / 0.04s
	want := 960.0 / 0.04
	assert.InDelta(t, want, tr.VelocityGet(), 1e-6)
}

func TestVelocityZeroDeltaTime(t *testing.T) {
	tr := New()
	base := time.Unix(0, 0)
	tr.SamplePush(geometry.Position{X: 0, Y: 0}, base)
	tr.SamplePush(geometry.Position{X: 100, Y: 0}, base)
	assert.Equal(t, 0.0, tr.VelocityGet())
}

func TestRingOverwritesOldest(t *testing.T) {
	tr := New()
	base := time.Unix(0, 0)
	for i := 0; i < HistorySize+2; i++ {
		tr.SamplePush(geometry.Position{X: i, Y: 0}, base.Add(time.Duration(i)*20*time.Millisecond))
	}
	oldest, newest := tr.oldestAndNewest()
	assert.Equal(t, 2, oldest.pos.X) // the two earliest pushes (0,1) got overwritten
	assert.Equal(t, HistorySize+1, newest.pos.X)
}

// P2: strictly inside the screen by more than edge_threshold never boundary-detects.
func TestBoundaryDetectNoneWellInside(t *testing.T) {
	tr := New()
	base := time.Unix(0, 0)
	tr.SamplePush(geometry.Position{X: 960, Y: 540}, base)
	tr.SamplePush(geometry.Position{X: 900, Y: 540}, base.Add(20*time.Millisecond))

	for _, vel := range []float64{0, 1, 1e9} {
		_, ok := tr.BoundaryDetect(geometry.Position{X: 960, Y: 540}, geom, vel, 5)
		assert.False(t, ok)
	}
}

// P3: on an edge but below velocity threshold never boundary-detects.
func TestBoundaryDetectNoneBelowVelocity(t *testing.T) {
	tr := New()
	base := time.Unix(0, 0)
	tr.SamplePush(geometry.Position{X: 5, Y: 540}, base)
	tr.SamplePush(geometry.Position{X: 0, Y: 540}, base.Add(1*time.Second))

	_, ok := tr.BoundaryDetect(geometry.Position{X: 0, Y: 540}, geom, 50, 0)
	assert.False(t, ok)
}

func TestBoundaryDetectFiresOnFastEdgeCrossing(t *testing.T) {
	tr := New()
	base := time.Unix(0, 0)
	tr.SamplePush(geometry.Position{X: 960, Y: 540}, base)
	tr.SamplePush(geometry.Position{X: 100, Y: 540}, base.Add(20*time.Millisecond))
	tr.SamplePush(geometry.Position{X: 0, Y: 540}, base.Add(40*time.Millisecond))

	tr2, ok := tr.BoundaryDetect(geometry.Position{X: 0, Y: 540}, geom, 50, 0)
	assert.True(t, ok)
	assert.Equal(t, geometry.Left, tr2.Direction)
}

func TestCornerPrefersHorizontalEdge(t *testing.T) {
	dir, ok := EdgeAt(geometry.Position{X: 0, Y: 0}, geom, 2)
	assert.True(t, ok)
	assert.Equal(t, geometry.Top, dir)

	dir, ok = EdgeAt(geometry.Position{X: geom.Width - 1, Y: geom.Height - 1}, geom, 2)
	assert.True(t, ok)
	assert.Equal(t, geometry.Bottom, dir)
}

func TestResetClearsRing(t *testing.T) {
	tr := New()
	tr.SamplePush(geometry.Position{X: 1, Y: 1}, time.Unix(0, 0))
	tr.SamplePush(geometry.Position{X: 2, Y: 2}, time.Unix(1, 0))
	tr.Reset()
	assert.Equal(t, 0.0, tr.VelocityGet())
}
