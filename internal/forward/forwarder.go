// Package forward implements the per-tick REMOTE-context forwarding loop
// from spec.md §4.5: poll the pointer, check the return condition, forward
// the normalized position when it has moved, and drain+forward raw input
// events. Grounded on the teacher's EdgeDetector-driven capture loop in
// internal/input/edge_detector.go, generalized from waymon's single-client
// broadcast to tx2tx's addressed-send-to-the-active-client model.
package forward

import (
	"time"

	"github.com/tx2tx/tx2tx/internal/display"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/logger"
	"github.com/tx2tx/tx2tx/internal/network"
	"github.com/tx2tx/tx2tx/internal/state"
	"github.com/tx2tx/tx2tx/internal/tracker"
	"github.com/tx2tx/tx2tx/internal/transition"
)

// DeferredWarpMaxTicks bounds how many ticks the forwarder will keep
// re-attempting a deferred warp before giving up and forwarding anyway
// (spec.md §5: "recommended ≤ 25, i.e. ~0.5s" at a 20ms tick).
const DeferredWarpMaxTicks = 25

// DeferredWarpTolerance is how close, in pixels, the observed position
// must be to the target before the deferred-warp flag clears.
const DeferredWarpTolerance = 10

// Sender is the narrow network capability the forwarder needs.
type Sender interface {
	Send(name string, msg network.Message) error
}

// Forwarder drives one tick of REMOTE-context behavior. It holds no
// network connection state beyond Sender; apart from its deferred-warp
// tick counter, all mutable state lives in the shared *state.State so the
// controller and forwarder agree on context.
type Forwarder struct {
	backend  display.Backend
	sender   Sender
	registry *state.Registry
	ctrl     *transition.Controller
	trk      *tracker.Tracker
	state    *state.State
	geom     geometry.ScreenGeometry

	returnVelocityThreshold float64
	edgeThreshold           float64

	deferredTicks int
}

// New builds a Forwarder. returnVelocityThreshold should be half the entry
// velocity threshold per spec.md §9(b).
func New(backend display.Backend, sender Sender, registry *state.Registry, ctrl *transition.Controller, trk *tracker.Tracker, st *state.State, geom geometry.ScreenGeometry, returnVelocityThreshold, edgeThreshold float64) *Forwarder {
	return &Forwarder{
		backend:                 backend,
		sender:                  sender,
		registry:                registry,
		ctrl:                    ctrl,
		trk:                     trk,
		state:                   st,
		geom:                    geom,
		returnVelocityThreshold: returnVelocityThreshold,
		edgeThreshold:           edgeThreshold,
	}
}

// Tick runs one forwarding iteration. It is a no-op when context is
// CENTER; callers are expected to only invoke it while state.Context is
// remote, but the guard is kept here for safety.
func (f *Forwarder) Tick(now time.Time) {
	if !f.state.Context.IsRemote() {
		return
	}

	// Step 1: re-issue a deferred warp if one is outstanding.
	if f.state.BoundaryCrossed {
		f.retryDeferredWarp(now)
		return
	}

	rec, ok := f.registry.ByPosition(f.state.Context)
	if !ok {
		f.ctrl.ForceCenter(now)
		return
	}

	// Step 2.
	pos, err := f.backend.PointerQuery()
	if err != nil {
		logger.Debugf("forward: pointer query failed: %v", err)
		return
	}
	f.trk.SamplePush(pos, now)

	// Step 3: return condition.
	dir, atEdge := tracker.EdgeAt(pos, f.geom, f.edgeThreshold)
	if atEdge && dir == transition.ReturnEdge(f.state.Context) && f.trk.VelocityGet() >= f.returnVelocityThreshold {
		f.ctrl.Return(now, pos)
		return
	}

	// Step 4/5: normalize and forward if moved.
	np := f.geom.Normalize(pos)
	if f.shouldSend(np) {
		if err := f.sender.Send(rec.Name, network.Message{
			MsgType: network.MsgMouseEvent, Event: "move", NormX: np.NX, NormY: np.NY,
		}); err != nil {
			logger.Debugf("forward: send move failed: %v", err)
		}
		f.state.LastSentPosition = &np
	}

	// Step 6: drain and forward raw input events.
	for _, ev := range f.backend.EventsDrain() {
		f.forwardEvent(rec.Name, ev, np)
	}
}

// shouldSend implements P8/step 5: suppress when the position has not
// moved by at least one pixel-equivalent since the last send.
func (f *Forwarder) shouldSend(np geometry.NormalizedPoint) bool {
	if f.state.LastSentPosition == nil {
		return true
	}
	last := *f.state.LastSentPosition
	oneX := 1.0 / float64(f.geom.Width)
	oneY := 1.0 / float64(f.geom.Height)
	return absf(np.NX-last.NX) >= oneX || absf(np.NY-last.NY) >= oneY
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (f *Forwarder) forwardEvent(clientName string, ev display.RawInputEvent, np geometry.NormalizedPoint) {
	switch ev.Kind {
	case display.ButtonPress, display.ButtonRelease:
		action := "press"
		if ev.Kind == display.ButtonRelease {
			action = "release"
		}
		f.sendLogged(clientName, network.Message{
			MsgType: network.MsgMouseEvent, Event: action, NormX: np.NX, NormY: np.NY, Button: ev.Button,
		})
	case display.Scroll:
		f.sendLogged(clientName, network.Message{
			MsgType: network.MsgMouseEvent, Event: "scroll", NormX: np.NX, NormY: np.NY, Delta: ev.ScrollDY,
		})
	case display.KeyPress, display.KeyRelease:
		action := "press"
		if ev.Kind == display.KeyRelease {
			action = "release"
		}
		f.sendLogged(clientName, network.Message{
			MsgType: network.MsgKeyEvent, Event: action, Keycode: ev.Keycode, Keysym: ev.Keysym,
		})
	}
}

func (f *Forwarder) sendLogged(clientName string, msg network.Message) {
	if err := f.sender.Send(clientName, msg); err != nil {
		logger.Debugf("forward: send event failed: %v", err)
	}
}

// retryDeferredWarp implements the optional deferred-warp protocol from
// spec.md §4.4: while BoundaryCrossed is set, no coordinate is forwarded;
// the warp is re-attempted and the flag clears once the observed position
// is within DeferredWarpTolerance pixels of the target, or after
// DeferredWarpMaxTicks ticks elapse.
func (f *Forwarder) retryDeferredWarp(now time.Time) {
	target := f.state.TargetWarpPosition
	if target == nil {
		f.state.BoundaryCrossed = false
		return
	}

	if err := f.backend.PointerWarp(*target); err != nil {
		logger.Debugf("forward: deferred warp retry failed: %v", err)
	}
	pos, err := f.backend.PointerQuery()
	if err != nil {
		return
	}

	f.deferredTicks++
	if withinTolerance(pos, *target, DeferredWarpTolerance) || f.deferredTicks >= DeferredWarpMaxTicks {
		f.state.BoundaryCrossed = false
		f.state.TargetWarpPosition = nil
		f.deferredTicks = 0
	}
}

func withinTolerance(a, b geometry.Position, tolerance int) bool {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx <= tolerance && dy <= tolerance
}
