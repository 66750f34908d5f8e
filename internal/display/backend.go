// Package display defines the narrow capability set the core consumes to
// drive the host desktop: cursor query/warp/hide/show, pointer and
// keyboard grab, and a non-blocking raw event drain, per spec.md §4.1. Two
// concrete backends (X11Backend, HelperBackend) satisfy Backend; the core
// never imports either directly, only the interface.
package display

import "github.com/tx2tx/tx2tx/internal/geometry"

// EventKind discriminates the RawInputEvent variants the backend reports.
type EventKind int

const (
	ButtonPress EventKind = iota
	ButtonRelease
	KeyPress
	KeyRelease
	Scroll
)

// RawInputEvent carries a discriminant, button/keycode, and modifier state.
// Keycodes are passed through unmodified where the backend has no portable
// mapping; no modifier translation is performed by the core (spec.md §4.5).
type RawInputEvent struct {
	Kind      EventKind
	Button    int // valid for ButtonPress/ButtonRelease
	Keycode   int // valid for KeyPress/KeyRelease
	Keysym    int // best-effort, 0 if unknown
	Modifiers uint32
	ScrollDX  int // valid for Scroll
	ScrollDY  int
}

// GrabFailed is returned by PointerGrab/KeyboardGrab when the display
// server refuses the grab. It is a recoverable error: the caller aborts
// the entry transition and stays in CENTER.
type GrabFailed struct{ Reason string }

func (e *GrabFailed) Error() string { return "grab failed: " + e.Reason }

// Backend is the display-backend contract from spec.md §4.1. Every method
// that can fail transiently (warp, hide/show, query) is documented as
// never fatal: the caller logs and proceeds rather than propagating the
// error up through the transition controller.
type Backend interface {
	// GeometryGet returns the server screen's pixel dimensions. Fatal at
	// startup only.
	GeometryGet() (geometry.ScreenGeometry, error)

	// PointerQuery returns the current pointer position. On a transient
	// failure it returns the last-known position and logs; it never
	// blocks.
	PointerQuery() (geometry.Position, error)

	// PointerWarp requests the pointer move to pos. May silently no-op on
	// uncooperative compositors; never returns an error the caller must
	// act on beyond logging.
	PointerWarp(pos geometry.Position) error

	PointerGrab() error
	PointerUngrab() error

	KeyboardGrab() error
	KeyboardUngrab() error

	// CursorHide/CursorShow may silently no-op; never fatal.
	CursorHide() error
	CursorShow() error

	// EventsDrain returns any events captured since the last call. Never
	// blocks.
	EventsDrain() []RawInputEvent

	// Close releases backend resources (connections, file descriptors).
	Close() error
}
