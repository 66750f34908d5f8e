// Package clientapp implements tx2tx's client role: connect to a server,
// receive mouse_event/key_event messages, and inject them into the local
// input stack. Grounded on the teacher's internal/wayland InputInjector and
// internal/input uInputHandler, both of which wrap github.com/ThomasT75/uinput
// the same way; tx2tx generalizes their relative-motion tracking to the
// normalized-coordinate wire format from spec.md §6 instead of protobuf
// MouseEvent/KeyboardEvent messages.
package clientapp

import (
	"fmt"
	"sync"

	"github.com/ThomasT75/uinput"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/network"
)

// Injector turns received wire messages into local input. It is narrow
// enough that tests substitute a fake without touching /dev/uinput.
type Injector interface {
	Apply(msg network.Message) error
	Hide()
	Close() error
}

// UinputInjector injects mouse and keyboard events via a virtual uinput
// mouse and keyboard, the way the teacher's WaylandInputInjector and
// uInputHandler both do. uinput only moves the pointer relatively, so
// incoming normalized absolute positions are converted to a pixel target
// against geom and applied as a delta from the last known position, exactly
// as the teacher's handleMove/injectMousePosition track currentX/currentY.
type UinputInjector struct {
	mouse    uinput.Mouse
	keyboard uinput.Keyboard

	geom geometry.ScreenGeometry

	mu       sync.Mutex
	curX     float64
	curY     float64
	tracking bool
	closed   bool
}

// NewUinputInjector creates the virtual mouse and keyboard devices. geom is
// the client's own screen geometry, used to denormalize incoming positions.
func NewUinputInjector(geom geometry.ScreenGeometry) (*UinputInjector, error) {
	mouse, err := uinput.CreateMouse("/dev/uinput", []byte("tx2tx Virtual Mouse"))
	if err != nil {
		return nil, fmt.Errorf("clientapp: create virtual mouse: %w", err)
	}
	keyboard, err := uinput.CreateKeyboard("/dev/uinput", []byte("tx2tx Virtual Keyboard"))
	if err != nil {
		_ = mouse.Close()
		return nil, fmt.Errorf("clientapp: create virtual keyboard: %w", err)
	}
	return &UinputInjector{mouse: mouse, keyboard: keyboard, geom: geom}, nil
}

// Apply dispatches one received message to the appropriate uinput call.
func (u *UinputInjector) Apply(msg network.Message) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return fmt.Errorf("clientapp: injector closed")
	}

	switch msg.MsgType {
	case network.MsgMouseEvent:
		return u.applyMouseLocked(msg)
	case network.MsgKeyEvent:
		return u.applyKeyLocked(msg)
	default:
		return nil
	}
}

func (u *UinputInjector) applyMouseLocked(msg network.Message) error {
	if network.IsHideSignal(msg) {
		u.tracking = false
		return nil
	}

	switch msg.Event {
	case "move":
		return u.moveToLocked(msg.NormX, msg.NormY)
	case "press", "release":
		if err := u.moveToLocked(msg.NormX, msg.NormY); err != nil {
			return err
		}
		return u.pressButtonLocked(msg.Button, msg.Event == "press")
	case "scroll":
		if err := u.moveToLocked(msg.NormX, msg.NormY); err != nil {
			return err
		}
		return u.mouse.Wheel(false, int32(msg.Delta))
	default:
		return fmt.Errorf("clientapp: unknown mouse event %q", msg.Event)
	}
}

// moveToLocked denormalizes (nx, ny) against geom and moves the virtual
// mouse by the delta from the last applied position. The first move after
// entering tracking establishes a baseline rather than jumping from (0, 0).
func (u *UinputInjector) moveToLocked(nx, ny float64) error {
	target := u.geom.Denormalize(geometry.NormalizedPoint{NX: nx, NY: ny})
	x, y := float64(target.X), float64(target.Y)

	if !u.tracking {
		u.curX, u.curY = x, y
		u.tracking = true
		return nil
	}

	dx := int32(x - u.curX)
	dy := int32(y - u.curY)
	u.curX, u.curY = x, y
	if dx == 0 && dy == 0 {
		return nil
	}
	return u.mouse.Move(dx, dy)
}

// pressButtonLocked maps the server's button numbering (as both server
// backends report it: 1 = left, 2 = right, 3 = middle) onto the uinput
// mouse's press/release calls.
func (u *UinputInjector) pressButtonLocked(button int, pressed bool) error {
	switch button {
	case 1:
		if pressed {
			return u.mouse.LeftPress()
		}
		return u.mouse.LeftRelease()
	case 2:
		if pressed {
			return u.mouse.RightPress()
		}
		return u.mouse.RightRelease()
	case 3:
		if pressed {
			return u.mouse.MiddlePress()
		}
		return u.mouse.MiddleRelease()
	default:
		return fmt.Errorf("clientapp: unsupported button %d", button)
	}
}

func (u *UinputInjector) applyKeyLocked(msg network.Message) error {
	if msg.Event == "press" {
		return u.keyboard.KeyDown(msg.Keycode)
	}
	return u.keyboard.KeyUp(msg.Keycode)
}

// Hide stops absolute-position tracking without touching the virtual
// devices; the next "move" re-establishes a baseline instead of jumping.
func (u *UinputInjector) Hide() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tracking = false
}

// Close releases both virtual devices.
func (u *UinputInjector) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	err := u.mouse.Close()
	if kerr := u.keyboard.Close(); err == nil {
		err = kerr
	}
	return err
}
