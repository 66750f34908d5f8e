package transition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tx2tx/tx2tx/internal/display"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/network"
	"github.com/tx2tx/tx2tx/internal/state"
	"github.com/tx2tx/tx2tx/internal/tracker"
)

type fakeBackend struct {
	geom geometry.ScreenGeometry
	pos  geometry.Position

	pointerGrabbed  bool
	keyboardGrabbed bool
	cursorHidden    bool

	failPointerGrab bool
	failKeyboardGrab bool

	warpedTo []geometry.Position
}

func (f *fakeBackend) GeometryGet() (geometry.ScreenGeometry, error) { return f.geom, nil }
func (f *fakeBackend) PointerQuery() (geometry.Position, error)      { return f.pos, nil }
func (f *fakeBackend) PointerWarp(pos geometry.Position) error {
	f.warpedTo = append(f.warpedTo, pos)
	f.pos = pos
	return nil
}
func (f *fakeBackend) PointerGrab() error {
	if f.failPointerGrab {
		return &display.GrabFailed{Reason: "denied"}
	}
	f.pointerGrabbed = true
	return nil
}
func (f *fakeBackend) PointerUngrab() error { f.pointerGrabbed = false; return nil }
func (f *fakeBackend) KeyboardGrab() error {
	if f.failKeyboardGrab {
		return &display.GrabFailed{Reason: "denied"}
	}
	f.keyboardGrabbed = true
	return nil
}
func (f *fakeBackend) KeyboardUngrab() error       { f.keyboardGrabbed = false; return nil }
func (f *fakeBackend) CursorHide() error           { f.cursorHidden = true; return nil }
func (f *fakeBackend) CursorShow() error           { f.cursorHidden = false; return nil }
func (f *fakeBackend) EventsDrain() []display.RawInputEvent { return nil }
func (f *fakeBackend) Close() error                { return nil }

type fakeSender struct {
	sent []network.Message
	to   []string
}

func (f *fakeSender) Send(name string, msg network.Message) error {
	f.to = append(f.to, name)
	f.sent = append(f.sent, msg)
	return nil
}

func setup(t *testing.T) (*fakeBackend, *fakeSender, *state.Registry, *Controller) {
	t.Helper()
	geom := geometry.ScreenGeometry{Width: 1920, Height: 1080}
	backend := &fakeBackend{geom: geom}
	sender := &fakeSender{}
	registry := state.NewRegistry()
	registry.Register(&state.Record{Name: "leftbox", Position: geometry.West, Conn: &closer{}})
	trk := tracker.New()
	st := state.New()
	ctrl := New(backend, sender, registry, trk, st, geom)
	return backend, sender, registry, ctrl
}

type closer struct{}

func (closer) Close() error { return nil }

func TestEnterSendsEntryCoordinateFirst(t *testing.T) {
	backend, sender, _, ctrl := setup(t)
	trans := tracker.Transition{Direction: geometry.Left, Position: geometry.Position{X: 0, Y: 540}}

	ok := ctrl.Enter(trans, time.Now())
	require.True(t, ok)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, network.MsgMouseEvent, sender.sent[0].MsgType)
	assert.GreaterOrEqual(t, sender.sent[0].NormX, 1.0-3.0/1920)
	assert.LessOrEqual(t, sender.sent[0].NormX, 1.0)
	assert.True(t, backend.pointerGrabbed)
	assert.True(t, backend.keyboardGrabbed)
	assert.True(t, backend.cursorHidden)
}

func TestEnterAbortsOnGrabFailureWithNoMessageSent(t *testing.T) {
	backend, sender, _, ctrl := setup(t)
	backend.failPointerGrab = true
	trans := tracker.Transition{Direction: geometry.Left, Position: geometry.Position{X: 0, Y: 540}}

	ok := ctrl.Enter(trans, time.Now())
	assert.False(t, ok)
	assert.Empty(t, sender.sent)
	assert.False(t, backend.cursorHidden)
	assert.Equal(t, geometry.Center, ctrl.state.Context)
}

func TestEnterRespectsHysteresis(t *testing.T) {
	_, _, _, ctrl := setup(t)
	ctrl.state.LastCenterSwitchTime = time.Now()
	trans := tracker.Transition{Direction: geometry.Left, Position: geometry.Position{X: 0, Y: 540}}

	ok := ctrl.Enter(trans, ctrl.state.LastCenterSwitchTime.Add(50*time.Millisecond))
	assert.False(t, ok)
}

func TestPanicReturnUnconditional(t *testing.T) {
	backend, sender, _, ctrl := setup(t)
	trans := tracker.Transition{Direction: geometry.Left, Position: geometry.Position{X: 0, Y: 540}}
	require.True(t, ctrl.Enter(trans, time.Now()))
	sender.sent = nil

	ctrl.Panic(time.Now())

	assert.Equal(t, geometry.Center, ctrl.state.Context)
	assert.False(t, backend.pointerGrabbed)
	assert.False(t, backend.keyboardGrabbed)
	assert.False(t, backend.cursorHidden)
	require.Len(t, sender.sent, 1)
	assert.True(t, sender.sent[0].NormX == -1.0 && sender.sent[0].NormY == -1.0)
}

func TestForceCenterWhenActiveClientLost(t *testing.T) {
	backend, _, registry, ctrl := setup(t)
	trans := tracker.Transition{Direction: geometry.Left, Position: geometry.Position{X: 0, Y: 540}}
	require.True(t, ctrl.Enter(trans, time.Now()))

	registry.Unregister("leftbox")
	ctrl.ForceCenter(time.Now())

	assert.Equal(t, geometry.Center, ctrl.state.Context)
	assert.False(t, backend.pointerGrabbed)
}

func TestReturnWarpTargetAndReturnEdge(t *testing.T) {
	geom := geometry.ScreenGeometry{Width: 1920, Height: 1080}
	assert.Equal(t, geometry.Right, ReturnEdge(geometry.West))
	assert.Equal(t, geometry.Left, ReturnEdge(geometry.East))
	assert.Equal(t, geometry.Bottom, ReturnEdge(geometry.North))
	assert.Equal(t, geometry.Top, ReturnEdge(geometry.South))

	target := returnWarpTarget(geometry.West, geometry.Position{X: 1919, Y: 300}, geom)
	assert.Equal(t, geometry.Position{X: EdgeEntryOffset, Y: 300}, target)
}
