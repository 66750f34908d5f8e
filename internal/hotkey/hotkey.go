// Package hotkey recognises the panic key and the jump-prefix sequence in
// front of the forwarder's event drain, per spec.md §4.6. It consumes
// matched events and passes everything else through unaltered. The
// modifier-bitmask and keycode-table approach is grounded on the teacher's
// internal/input/hotkey_capture.go (ModCtrl/ModAlt/ModShift/ModSuper,
// KEY_LEFTCTRL et al.), generalized from a single fixed combo to a
// configurable panic key plus a jump-prefix state machine.
package hotkey

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tx2tx/tx2tx/internal/display"
	"github.com/tx2tx/tx2tx/internal/geometry"
)

// Modifier bitmask, named the way the teacher's HotkeyCapture names its
// ModCtrl/ModAlt/ModShift/ModSuper constants.
const (
	ModCtrl uint32 = 1 << iota
	ModAlt
	ModShift
	ModSuper
)

// keyCodes maps the portable key names accepted in config (panic_key,
// jump_hotkey, and jump action keys) to Linux evdev keycodes
// (input-event-codes.h numbering), matching the teacher's own local
// KEY_LEFTCTRL/KEY_LEFTALT/KEY_LEFTSHIFT/KEY_LEFTMETA table. The X11
// backend's events arrive 8 higher (the standard XKB evdev-keycode
// offset); ToEvdevKeycode below normalizes that.
var keyCodes = map[string]int{
	"ctrl":         29,
	"alt":          56,
	"shift":        42,
	"super":        125,
	"scroll_lock":  70,
	"/":            53,
	"0":            11,
	"1":            2,
	"2":            3,
	"3":            4,
	"4":            5,
	"5":            6,
	"6":            7,
	"7":            8,
	"8":            9,
	"9":            10,
}

// x11EvdevKeycodeOffset is the fixed offset between an X11 keycode and the
// corresponding evdev keycode under the standard XKB "evdev" rules (X11
// reserves keycodes 0-7).
const x11EvdevKeycodeOffset = 8

// ToEvdevKeycode normalizes a RawInputEvent.Keycode from either backend
// into the evdev numbering keyCodes is expressed in.
func ToEvdevKeycode(backendName string, raw int) int {
	if backendName == "x11" {
		return raw - x11EvdevKeycodeOffset
	}
	return raw
}

// Combo is a modifier bitmask plus a single trigger keycode.
type Combo struct {
	Modifiers uint32
	Keycode   int
}

// ParseCombo parses strings like "ctrl+/" or "scroll_lock" into a Combo.
func ParseCombo(spec string) (Combo, error) {
	parts := strings.Split(spec, "+")
	var c Combo
	for i, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		last := i == len(parts)-1
		switch p {
		case "ctrl":
			c.Modifiers |= ModCtrl
		case "alt":
			c.Modifiers |= ModAlt
		case "shift":
			c.Modifiers |= ModShift
		case "super":
			c.Modifiers |= ModSuper
		default:
			code, ok := keyCodes[p]
			if !ok {
				return Combo{}, fmt.Errorf("hotkey: unknown key %q in %q", p, spec)
			}
			if !last {
				return Combo{}, fmt.Errorf("hotkey: non-modifier key %q must be last in %q", p, spec)
			}
			c.Keycode = code
		}
	}
	if c.Keycode == 0 {
		return Combo{}, fmt.Errorf("hotkey: %q has no trigger key", spec)
	}
	return c, nil
}

// JumpTarget maps an action key (the digit following the jump prefix) to
// the context it jumps to. "0" maps to CENTER.
type JumpTarget struct {
	Keycode int
	Context geometry.Context
}

// JumpPrefixTimeout is how long the dispatcher waits after seeing the jump
// prefix before releasing accumulated keys to the forwarder unchanged.
const JumpPrefixTimeout = 1500 * time.Millisecond

// Dispatcher recognises the panic combo and the jump-prefix sequence in
// front of a stream of RawInputEvents.
type Dispatcher struct {
	panicCombo Combo
	jumpPrefix Combo
	jumpKeys   map[int]geometry.Context

	heldModifiers uint32
	awaitingJump  bool
	jumpDeadline  time.Time

	// pendingPrefix holds the raw (un-normalized) jump-prefix keystroke
	// consumed while awaiting a follow-up digit, so it can be released
	// to the forwarder unchanged if the follow-up never arrives.
	pendingPrefix []display.RawInputEvent

	OnPanic func()
	OnJump  func(ctx geometry.Context)
}

// New builds a Dispatcher from the configured panic key and jump hotkey.
func New(panicKeySpec, jumpHotkeySpec string) (*Dispatcher, error) {
	panicCombo, err := ParseCombo(panicKeySpec)
	if err != nil {
		return nil, fmt.Errorf("hotkey: panic_key: %w", err)
	}
	jumpPrefix, err := ParseCombo(jumpHotkeySpec)
	if err != nil {
		return nil, fmt.Errorf("hotkey: jump_hotkey: %w", err)
	}

	jumpKeys := map[int]geometry.Context{
		keyCodes["0"]: geometry.Center,
		keyCodes["1"]: geometry.West,
		keyCodes["2"]: geometry.East,
		keyCodes["3"]: geometry.North,
		keyCodes["4"]: geometry.South,
	}

	return &Dispatcher{panicCombo: panicCombo, jumpPrefix: jumpPrefix, jumpKeys: jumpKeys}, nil
}

// modifierBit returns the bit a key-down/up of the given evdev keycode
// contributes to the held-modifier mask, or 0 if it is not a modifier.
func modifierBit(evdevKeycode int) uint32 {
	switch evdevKeycode {
	case keyCodes["ctrl"]:
		return ModCtrl
	case keyCodes["alt"]:
		return ModAlt
	case keyCodes["shift"]:
		return ModShift
	case keyCodes["super"]:
		return ModSuper
	default:
		return 0
	}
}

// PollTimeout checks whether a previously consumed jump-prefix keystroke
// has missed its follow-up window and, if so, releases it for replay.
// Callers must invoke this once per drain cycle even when no new events
// arrived, since the deadline is wall-clock based and may elapse between
// drains with nothing further to Dispatch.
func (d *Dispatcher) PollTimeout(now time.Time) []display.RawInputEvent {
	if !d.awaitingJump || !now.After(d.jumpDeadline) {
		return nil
	}
	d.awaitingJump = false
	released := d.pendingPrefix
	d.pendingPrefix = nil
	return released
}

// Dispatch inspects one raw key event and reports whether it was
// consumed, plus any previously consumed jump-prefix keystroke that must
// now be released because this event's arrival revealed the follow-up
// window already elapsed. Consumed events are never forwarded; released
// events must be re-emitted by the caller unchanged, ahead of ev.
//
// raw is the event exactly as the backend produced it, kept for replay.
// normalized is the same event with its keycode normalized to evdev
// numbering (via ToEvdevKeycode) for combo matching.
func (d *Dispatcher) Dispatch(raw, normalized display.RawInputEvent, now time.Time) (consumed bool, released []display.RawInputEvent) {
	released = d.PollTimeout(now)

	ev := normalized
	if ev.Kind != display.KeyPress && ev.Kind != display.KeyRelease {
		return false, released
	}

	if bit := modifierBit(ev.Keycode); bit != 0 {
		if ev.Kind == display.KeyPress {
			d.heldModifiers |= bit
		} else {
			d.heldModifiers &^= bit
		}
		// Modifier-only events pass through; they have no effect on their
		// own and the client may legitimately want them (e.g. Ctrl+click).
		return false, released
	}

	if d.awaitingJump && ev.Kind == display.KeyPress {
		d.awaitingJump = false
		d.pendingPrefix = nil
		if ctx, ok := d.jumpKeys[ev.Keycode]; ok {
			if d.OnJump != nil {
				d.OnJump(ctx)
			}
			return true, released
		}
		// Unrecognised follow-up: the prefix is gone for good (a jump
		// sequence was clearly attempted), but this key itself was never
		// consumed by the prefix wait and passes through below.
	}

	if ev.Kind == display.KeyPress && d.heldModifiers == d.panicCombo.Modifiers && ev.Keycode == d.panicCombo.Keycode {
		if d.OnPanic != nil {
			d.OnPanic()
		}
		return true, released
	}

	if ev.Kind == display.KeyPress && d.heldModifiers == d.jumpPrefix.Modifiers && ev.Keycode == d.jumpPrefix.Keycode {
		d.awaitingJump = true
		d.jumpDeadline = now.Add(JumpPrefixTimeout)
		d.pendingPrefix = []display.RawInputEvent{raw}
		return true, released
	}

	return false, released
}

// ContextFromDigit is a small helper for tests/config validation that maps
// the jump action digit strings used in documentation to contexts.
func ContextFromDigit(s string) (geometry.Context, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return geometry.Center, err
	}
	switch n {
	case 0:
		return geometry.Center, nil
	case 1:
		return geometry.West, nil
	case 2:
		return geometry.East, nil
	case 3:
		return geometry.North, nil
	case 4:
		return geometry.South, nil
	default:
		return geometry.Center, fmt.Errorf("hotkey: no context bound to digit %d", n)
	}
}
