package hotkey

import (
	"time"

	"github.com/tx2tx/tx2tx/internal/display"
)

// FilterBackend wraps a display.Backend so its EventsDrain "sits in front
// of the forwarder's event drain", per spec.md §4.6: every drained key
// event is offered to a Dispatcher first, and only events it does not
// consume are returned to the caller (the forwarder, or the engine's own
// CENTER-context drain).
type FilterBackend struct {
	display.Backend
	dispatch    *Dispatcher
	backendName string
	now         func() time.Time
}

// NewFilterBackend wraps backend with dispatch. now defaults to time.Now
// when nil; tests may override it for deterministic jump-prefix timeouts.
func NewFilterBackend(backend display.Backend, dispatch *Dispatcher, backendName string, now func() time.Time) *FilterBackend {
	if now == nil {
		now = time.Now
	}
	return &FilterBackend{Backend: backend, dispatch: dispatch, backendName: backendName, now: now}
}

// EventsDrain implements display.Backend, filtering out consumed hotkey
// events before returning the rest. A jump-prefix keystroke consumed on
// an earlier call is re-emitted here, ahead of whatever else drains this
// cycle, if its follow-up never arrived within JumpPrefixTimeout.
//
// out is built into a fresh slice rather than the raw[:0] in-place trick:
// a released replay can make len(out) exceed the input index it is
// interleaved with, which would corrupt an aliased backing array.
func (f *FilterBackend) EventsDrain() []display.RawInputEvent {
	raw := f.Backend.EventsDrain()
	now := f.now()

	released := f.dispatch.PollTimeout(now)
	if len(raw) == 0 {
		return released
	}

	out := make([]display.RawInputEvent, 0, len(released)+len(raw))
	out = append(out, released...)
	for _, ev := range raw {
		if ev.Kind == display.KeyPress || ev.Kind == display.KeyRelease {
			normalized := ev
			normalized.Keycode = ToEvdevKeycode(f.backendName, ev.Keycode)
			consumed, released := f.dispatch.Dispatch(ev, normalized, now)
			out = append(out, released...)
			if consumed {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}
