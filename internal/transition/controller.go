// Package transition implements the entry/return/panic transition
// sequences from spec.md §4.3/§4.4: the ordered, best-effort steps that
// move the server between CENTER and a remote context, always funneling
// failure through a single make-safe helper so the host desktop is never
// left grabbed. Grounded on the teacher's ClientManager transition
// bookkeeping in internal/server/manager.go, generalized from waymon's
// single always-on grab to tx2tx's explicit CENTER/WEST/EAST/NORTH/SOUTH
// state machine.
package transition

import (
	"time"

	"github.com/tx2tx/tx2tx/internal/display"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/logger"
	"github.com/tx2tx/tx2tx/internal/network"
	"github.com/tx2tx/tx2tx/internal/state"
	"github.com/tx2tx/tx2tx/internal/tracker"
)

// EdgeEntryOffset places the pointer just inside the opposite edge on
// entry/return so it does not immediately re-trigger the boundary
// detector, per spec.md §4.3.
const EdgeEntryOffset = 2

// HysteresisDelay is the minimum time between a CENTER return and the next
// entry, suppressing edge bounce (spec.md §4.4).
const HysteresisDelay = 200 * time.Millisecond

// Sender is the narrow network capability the controller needs: addressed
// send, nothing else. Satisfied by *network.Server.
type Sender interface {
	Send(name string, msg network.Message) error
}

// Controller drives the CENTER <-> remote-context transitions. It holds no
// long-lived network connection; Sender and Backend are supplied at
// construction and may be fakes in tests (spec.md §8 S3/S4).
type Controller struct {
	backend  display.Backend
	sender   Sender
	registry *state.Registry
	tracker  *tracker.Tracker
	state    *state.State
	geom     geometry.ScreenGeometry
}

// New builds a Controller over the given collaborators.
func New(backend display.Backend, sender Sender, registry *state.Registry, trk *tracker.Tracker, st *state.State, geom geometry.ScreenGeometry) *Controller {
	return &Controller{backend: backend, sender: sender, registry: registry, tracker: trk, state: st, geom: geom}
}

// entryWarpTarget computes the warp target for an entry in the given
// direction, per spec.md §4.3's first table.
func entryWarpTarget(dir geometry.Direction, pos geometry.Position, geom geometry.ScreenGeometry) geometry.Position {
	switch dir {
	case geometry.Left:
		return geometry.Position{X: geom.Width - 1 - EdgeEntryOffset, Y: pos.Y}
	case geometry.Right:
		return geometry.Position{X: EdgeEntryOffset, Y: pos.Y}
	case geometry.Top:
		return geometry.Position{X: pos.X, Y: geom.Height - 1 - EdgeEntryOffset}
	case geometry.Bottom:
		return geometry.Position{X: pos.X, Y: EdgeEntryOffset}
	default:
		return pos
	}
}

// entryCoordinate computes the normalized coordinate sent as the very
// first message on entry, so the client cursor appears at the correct edge
// on frame 1 without depending on the warp being visible (spec.md §9(a)).
func entryCoordinate(dir geometry.Direction, pos geometry.Position, geom geometry.ScreenGeometry) geometry.NormalizedPoint {
	target := entryWarpTarget(dir, pos, geom)
	return geom.Normalize(target)
}

// returnWarpTarget computes the warp target for a return from ctx, per
// spec.md §4.3's second table.
func returnWarpTarget(ctx geometry.Context, pos geometry.Position, geom geometry.ScreenGeometry) geometry.Position {
	switch ctx {
	case geometry.West:
		return geometry.Position{X: EdgeEntryOffset, Y: pos.Y}
	case geometry.East:
		return geometry.Position{X: geom.Width - 1 - EdgeEntryOffset, Y: pos.Y}
	case geometry.North:
		return geometry.Position{X: pos.X, Y: EdgeEntryOffset}
	case geometry.South:
		return geometry.Position{X: pos.X, Y: geom.Height - 1 - EdgeEntryOffset}
	default:
		return pos
	}
}

// ReturnEdge reports which outer edge, if crossed while in ctx, triggers a
// return to CENTER, per spec.md §4.3's second table.
func ReturnEdge(ctx geometry.Context) geometry.Direction {
	switch ctx {
	case geometry.West:
		return geometry.Right
	case geometry.East:
		return geometry.Left
	case geometry.North:
		return geometry.Bottom
	case geometry.South:
		return geometry.Top
	default:
		return geometry.DirectionNone
	}
}

// Enter attempts the CENTER -> ctx(dir) transition for the given raw
// tracker.Transition. It enforces the hysteresis precondition itself so
// callers need only check context == CENTER before calling. Returns true
// if the entry completed.
func (c *Controller) Enter(trans tracker.Transition, now time.Time) bool {
	if c.state.Context != geometry.Center {
		return false
	}
	if !c.state.HysteresisElapsed(now, HysteresisDelay) {
		return false
	}

	ctx := geometry.DirectionToContext[trans.Direction]
	rec, ok := c.registry.ByPosition(ctx)
	if !ok {
		logger.Debugf("transition: no client bound to %s, entry aborted", ctx)
		return false
	}

	// Acquire pointer+keyboard grab as a single bundle before anything is
	// sent to the client: a grab failure must leave no observable trace on
	// the wire (spec.md §8 S3).
	if err := c.backend.PointerGrab(); err != nil {
		c.makeSafe("entry pointer grab failed")
		return false
	}
	if err := c.backend.KeyboardGrab(); err != nil {
		_ = c.backend.PointerUngrab()
		c.makeSafe("entry keyboard grab failed")
		return false
	}

	// Send the calculated entry coordinate before the warp below, so the
	// client's cursor is correct on frame 1 even if the server-side warp
	// is silently dropped (spec.md §9(a)).
	entry := entryCoordinate(trans.Direction, trans.Position, c.geom)
	if err := c.sender.Send(rec.Name, network.Message{
		MsgType: network.MsgMouseEvent, Event: "move", NormX: entry.NX, NormY: entry.NY,
	}); err != nil {
		logger.Warnf("transition: entry coordinate send failed: %v", err)
	}

	if err := c.backend.CursorHide(); err != nil {
		logger.Debugf("transition: cursor hide silently dropped: %v", err)
	}

	// Step 5.
	target := entryWarpTarget(trans.Direction, trans.Position, c.geom)
	if err := c.backend.PointerWarp(target); err != nil {
		logger.Debugf("transition: pointer warp silently dropped: %v", err)
	}

	// Step 6.
	c.tracker.Reset()
	c.state.Context = ctx
	c.state.ClearLastSent()
	c.state.LastCenterSwitchTime = now
	c.state.BoundaryCrossed = false
	c.state.TargetWarpPosition = nil

	logger.Infof("transition: entered %s, active client %s", ctx, rec.Name)
	return true
}

// Return executes the REMOTE -> CENTER sequence from spec.md §4.4. The
// active client name is resolved from the registry by the current context.
func (c *Controller) Return(now time.Time, pos geometry.Position) {
	ctx := c.state.Context
	if ctx == geometry.Center {
		return
	}

	if rec, ok := c.registry.ByPosition(ctx); ok {
		if err := c.sender.Send(rec.Name, network.HideSignal()); err != nil {
			logger.Debugf("transition: hide signal send failed: %v", err)
		}
	}

	if err := c.backend.KeyboardUngrab(); err != nil {
		logger.Debugf("transition: keyboard ungrab error: %v", err)
	}
	if err := c.backend.PointerUngrab(); err != nil {
		logger.Debugf("transition: pointer ungrab error: %v", err)
	}

	if err := c.backend.CursorShow(); err != nil {
		logger.Debugf("transition: cursor show silently dropped: %v", err)
	}

	returnTarget := returnWarpTarget(ctx, pos, c.geom)
	if err := c.backend.PointerWarp(returnTarget); err != nil {
		logger.Debugf("transition: return warp silently dropped: %v", err)
	}

	c.tracker.Reset()
	c.state.Context = geometry.Center
	c.state.ClearLastSent()
	c.state.LastCenterSwitchTime = now
	c.state.BoundaryCrossed = false
	c.state.TargetWarpPosition = nil

	logger.Infof("transition: returned to CENTER from %s", ctx)
}

// Panic executes an unconditional return, per spec.md §4.4's panic path. It
// is always safe: it only ungrabs and shows, never grabs, so it is safe to
// call from any context including CENTER (where it is a no-op via Return's
// own guard).
func (c *Controller) Panic(now time.Time) {
	pos, err := c.backend.PointerQuery()
	if err != nil {
		pos = geometry.Position{}
	}
	c.Return(now, pos)
}

// makeSafe is the single cleanup sink spec.md §7 requires: best-effort
// ungrab + cursor-show, context forced to CENTER. Used when an entry
// aborts partway through acquiring the grab bundle.
func (c *Controller) makeSafe(reason string) {
	logger.Warnf("transition: aborting entry (%s), restoring CENTER", reason)
	_ = c.backend.KeyboardUngrab()
	_ = c.backend.PointerUngrab()
	_ = c.backend.CursorShow()
	c.state.Context = geometry.Center
	c.state.ClearLastSent()
	c.state.BoundaryCrossed = false
	c.state.TargetWarpPosition = nil
}

// ForceCenter is called when the active client's record disappears (zombie
// eviction or disconnect) while it is the active REMOTE client: the
// controller must not wait for the next pointer sample, per spec.md §7.
func (c *Controller) ForceCenter(now time.Time) {
	if c.state.Context == geometry.Center {
		return
	}
	logger.Infof("transition: active client lost, forcing return from %s", c.state.Context)
	pos, err := c.backend.PointerQuery()
	if err != nil {
		pos = geometry.Position{}
	}
	c.Return(now, pos)
}
