package forward

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
	"github.com/tx2tx/tx2tx/internal/transition"
)

type fakeBackend struct {
	geom geometry.ScreenGeometry
	pos  geometry.Position

	pointerGrabbed  bool
	keyboardGrabbed bool
	cursorHidden    bool
	events          []display.RawInputEvent
	warps           []geometry.Position

	// dropWarps makes PointerWarp record the request without moving the
	// pointer, like a compositor that silently ignores warps.
	dropWarps bool
}

func (f *fakeBackend) GeometryGet() (geometry.ScreenGeometry, error) { return f.geom, nil }
func (f *fakeBackend) PointerQuery() (geometry.Position, error)      { return f.pos, nil }
func (f *fakeBackend) PointerWarp(pos geometry.Position) error {
	f.warps = append(f.warps, pos)
	if !f.dropWarps {
		f.pos = pos
	}
	return nil
}
func (f *fakeBackend) PointerGrab() error          { f.pointerGrabbed = true; return nil }
func (f *fakeBackend) PointerUngrab() error        { f.pointerGrabbed = false; return nil }
func (f *fakeBackend) KeyboardGrab() error         { f.keyboardGrabbed = true; return nil }
func (f *fakeBackend) KeyboardUngrab() error       { f.keyboardGrabbed = false; return nil }
func (f *fakeBackend) CursorHide() error           { f.cursorHidden = true; return nil }
func (f *fakeBackend) CursorShow() error           { f.cursorHidden = false; return nil }
func (f *fakeBackend) EventsDrain() []display.RawInputEvent {
	out := f.events
	f.events = nil
	return out
}
func (f *fakeBackend) Close() error { return nil }

type closer struct{}

func (closer) Close() error { return nil }

type fakeSender struct {
	sent []network.Message
	to   []string
}

func (f *fakeSender) Send(name string, msg network.Message) error {
	f.to = append(f.to, name)
	f.sent = append(f.sent, msg)
	return nil
}

func setup(t *testing.T) (*fakeBackend, *fakeSender, *Forwarder, *state.State) {
	t.Helper()
	geom := geometry.ScreenGeometry{Width: 1920, Height: 1080}
	backend := &fakeBackend{geom: geom}
	sender := &fakeSender{}
	registry := state.NewRegistry()
	registry.Register(&state.Record{Name: "leftbox", Position: geometry.West, Conn: closer{}})
	trk := tracker.New()
	st := state.New()
	st.Context = geometry.West
	ctrl := transition.New(backend, sender, registry, trk, st, geom)
	fwd := New(backend, sender, registry, ctrl, trk, st, geom, 25, 0)
	return backend, sender, fwd, st
}

func TestForwarderSuppressesUnchangedPosition(t *testing.T) {
	_, sender, fwd, st := setup(t)
	now := time.Now()

	fwd.Tick(now)
	require.Len(t, sender.sent, 1)

	fwd.Tick(now.Add(20 * time.Millisecond))
	assert.Len(t, sender.sent, 1, "stationary pointer must not resend (P8)")
	assert.NotNil(t, st.LastSentPosition)
}

func TestForwarderReturnsOnOppositeEdgeAtVelocity(t *testing.T) {
	backend, sender, fwd, st := setup(t)
	t0 := time.Now()
	backend.pos = geometry.Position{X: 100, Y: 540}
	fwd.Tick(t0)

	backend.pos = geometry.Position{X: 1919, Y: 540}
	fwd.Tick(t0.Add(20 * time.Millisecond))

	assert.Equal(t, geometry.Center, st.Context)
	require.NotEmpty(t, sender.sent)
	last := sender.sent[len(sender.sent)-1]
	assert.Equal(t, -1.0, last.NormX)
	assert.Equal(t, -1.0, last.NormY)
	assert.Nil(t, st.LastSentPosition, "P6: last_sent_position cleared after return")
}

func TestForwarderForwardsButtonEvents(t *testing.T) {
	backend, sender, fwd, _ := setup(t)
	backend.events = []display.RawInputEvent{{Kind: display.ButtonPress, Button: 1}}

	fwd.Tick(time.Now())

	var sawButton bool
	for _, msg := range sender.sent {
		if msg.Event == "press" && msg.Button == 1 {
			sawButton = true
		}
	}
	assert.True(t, sawButton)
}

func TestForwarderNoopWhenCenter(t *testing.T) {
	_, sender, fwd, st := setup(t)
	st.Context = geometry.Center
	fwd.Tick(time.Now())
	assert.Empty(t, sender.sent)
}

func TestDeferredWarpSuppressesForwardingUntilWithinTolerance(t *testing.T) {
	backend, sender, fwd, st := setup(t)
	target := geometry.Position{X: 2, Y: 540}
	st.BoundaryCrossed = true
	st.TargetWarpPosition = &target
	backend.dropWarps = true
	backend.pos = geometry.Position{X: 500, Y: 540}

	fwd.Tick(time.Now())
	assert.Empty(t, sender.sent)
	assert.True(t, st.BoundaryCrossed)

	backend.pos = geometry.Position{X: 3, Y: 540}
	fwd.Tick(time.Now())
	assert.False(t, st.BoundaryCrossed)
}
