// Package engine wires the display backend, network server, registry,
// tracker, transition controller, forwarder, and hotkey dispatcher into the
// single-threaded cooperative tick loop from spec.md §2/§5/§4.7. Grounded
// on the teacher's cmd/server.go startup sequence and
// internal/server/manager.go's Start/Stop lifecycle, generalized from
// waymon's single always-on client to tx2tx's CENTER/WEST/EAST/NORTH/SOUTH
// state machine.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tx2tx/tx2tx/internal/config"
	"github.com/tx2tx/tx2tx/internal/display"
	"github.com/tx2tx/tx2tx/internal/forward"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/hotkey"
	"github.com/tx2tx/tx2tx/internal/logger"
	"github.com/tx2tx/tx2tx/internal/network"
	"github.com/tx2tx/tx2tx/internal/state"
	"github.com/tx2tx/tx2tx/internal/tracker"
	"github.com/tx2tx/tx2tx/internal/transition"
)

// Engine owns every server-side collaborator and runs the main tick loop.
type Engine struct {
	cfg      *config.Config
	backend  *hotkey.FilterBackend
	server   *network.Server
	registry *state.Registry
	trk      *tracker.Tracker
	st       *state.State
	ctrl     *transition.Controller
	fwd      *forward.Forwarder
	geom     geometry.ScreenGeometry

	backendName string
}

// New constructs an Engine from the loaded config and a display backend
// already opened by the caller (cmd/server.go picks the concrete backend
// per --backend/config, so the engine itself never imports a concrete
// backend type). The backend is wrapped in a hotkey.FilterBackend so the
// panic/jump dispatcher sits in front of every consumer of events_drain,
// per spec.md §4.6.
func New(cfg *config.Config, rawBackend display.Backend, backendName string) (*Engine, error) {
	geom, err := rawBackend.GeometryGet()
	if err != nil {
		return nil, fmt.Errorf("engine: geometry_get: %w", err)
	}

	registry := state.NewRegistry()
	resolver := func(name string) (geometry.Context, bool) {
		for _, cl := range cfg.Clients {
			if cl.Name == name {
				pos, err := geometry.PositionToContext(cl.Position)
				return pos, err == nil
			}
		}
		return geometry.Center, false
	}

	srv := network.NewServer(cfg.Server.Host, cfg.Server.Port, registry, cfg.Server.MaxClients, resolver)

	trk := tracker.New()
	st := state.New()

	dispatch, err := hotkey.New(cfg.Server.PanicKey, cfg.Server.JumpHotkey)
	if err != nil {
		return nil, fmt.Errorf("engine: hotkey config: %w", err)
	}
	backend := hotkey.NewFilterBackend(rawBackend, dispatch, backendName, nil)

	ctrl := transition.New(backend, srv, registry, trk, st, geom)
	fwd := forward.New(backend, srv, registry, ctrl, trk, st, geom, cfg.Server.VelocityThreshold/2, float64(cfg.Server.EdgeThreshold))

	dispatch.OnPanic = func() { ctrl.Panic(time.Now()) }
	dispatch.OnJump = func(ctx geometry.Context) {
		now := time.Now()
		if ctx == geometry.Center {
			pos, _ := backend.PointerQuery()
			ctrl.Return(now, pos)
			return
		}
		pos, _ := backend.PointerQuery()
		ctrl.Enter(tracker.Transition{Direction: directionFor(ctx), Position: pos}, now)
	}

	return &Engine{
		cfg: cfg, backend: backend, server: srv, registry: registry,
		trk: trk, st: st, ctrl: ctrl, fwd: fwd,
		geom: geom, backendName: backendName,
	}, nil
}

func directionFor(ctx geometry.Context) geometry.Direction {
	switch ctx {
	case geometry.West:
		return geometry.Left
	case geometry.East:
		return geometry.Right
	case geometry.North:
		return geometry.Top
	case geometry.South:
		return geometry.Bottom
	default:
		return geometry.DirectionNone
	}
}

// Run starts the network server and blocks running the tick loop at
// cfg.Server.PollIntervalMS until ctx is cancelled. On return, the server
// is guaranteed to be in CENTER with no grabs held (spec.md §7 fatal
// safety).
func (e *Engine) Run(ctx context.Context) error {
	if err := e.server.Start(ctx); err != nil {
		return fmt.Errorf("engine: network start: %w", err)
	}
	logger.Infof("engine: listening on %s (backend=%s)", e.server.Address(), e.backendName)

	defer func() {
		e.ctrl.Panic(time.Now())
		_ = e.backend.Close()
	}()

	interval := time.Duration(e.cfg.Server.PollIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case inbound, ok := <-e.server.Inbound():
			if !ok {
				return nil
			}
			e.handleInbound(inbound)
		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

// handleInbound reacts to a client disconnect observed by the network
// layer (network.Server pushes a synthetic MsgError on read-loop exit).
// If the disconnected client was the active REMOTE client, the controller
// forces an immediate return to CENTER (spec.md §7, S5).
func (e *Engine) handleInbound(msg network.InboundMessage) {
	if msg.Msg.MsgType != network.MsgError {
		return
	}
	if !e.st.Context.IsRemote() {
		return
	}
	if rec, ok := e.registry.ByPosition(e.st.Context); !ok || rec.Name == msg.Name {
		e.ctrl.ForceCenter(time.Now())
	}
}

// tick runs one iteration of the cooperative loop: in CENTER it polls the
// pointer and watches for an edge crossing; in any REMOTE context it
// delegates entirely to the forwarder. The hotkey dispatcher runs via the
// FilterBackend wrapping e.backend, so jump/panic combos are recognised
// regardless of context even though CENTER itself never forwards events.
func (e *Engine) tick(now time.Time) {
	if e.st.Context == geometry.Center {
		// Drain (and thereby hotkey-filter) events even in CENTER so a
		// jump combo can fire without first crossing an edge. CENTER has
		// no active client, so any leftover events are simply discarded.
		e.backend.EventsDrain()

		pos, err := e.backend.PointerQuery()
		if err != nil {
			return
		}
		e.trk.SamplePush(pos, now)
		if trans, ok := e.trk.BoundaryDetect(pos, e.geom, e.cfg.Server.VelocityThreshold, float64(e.cfg.Server.EdgeThreshold)); ok {
			e.ctrl.Enter(trans, now)
		}
		return
	}

	e.fwd.Tick(now)
}
