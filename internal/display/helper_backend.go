// HelperBackend is the Wayland route, for compositors that do not let
// ordinary clients query or warp the cursor. It runs inside the tx2tx
// process; there is no separate helper process and no IPC channel.
// It reads raw motion/button/key events directly from /dev/input via
// evdev (grounded on the teacher's internal/input/all_devices_capture.go),
// and tracks cursor position internally by integrating relative motion,
// exactly as the teacher's EdgeDetector.lastX/lastY does, because most
// wlroots compositors expose no absolute pointer query to clients.
// Grabs are emulated by exclusively grabbing the evdev devices (EVIOCGRAB)
// so events stop reaching the compositor while tx2tx is forwarding.
package display

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/logger"
)

// HelperBackend captures input from all evdev devices under /dev/input.
type HelperBackend struct {
	geom geometry.ScreenGeometry

	mu        sync.Mutex
	pos       geometry.Position
	events    []RawInputEvent
	grabbed   bool
	devices   []*evdev.InputDevice
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	hidden    bool
}

// NewHelperBackend opens every readable /dev/input/event* device and starts
// a capture goroutine per device. geom is supplied by the caller (e.g. from
// config or a one-shot wlr-randr query) since Wayland exposes no portable
// in-process geometry API to an unprivileged client.
func NewHelperBackend(geom geometry.ScreenGeometry) (*HelperBackend, error) {
	devices, err := evdev.ListInputDevices("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("helper: listing input devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("helper: no input devices found under /dev/input")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &HelperBackend{
		geom:    geom,
		devices: devices,
		pos:     geometry.Position{X: geom.Width / 2, Y: geom.Height / 2},
		cancel:  cancel,
	}

	var kept []*evdev.InputDevice
	for _, dev := range devices {
		if !looksLikePointerOrKeyboard(dev) {
			dev.File.Close()
			continue
		}
		kept = append(kept, dev)
		b.wg.Add(1)
		go b.captureLoop(ctx, dev)
	}
	b.devices = kept

	return b, nil
}

func looksLikePointerOrKeyboard(dev *evdev.InputDevice) bool {
	for _, capType := range dev.Capabilities {
		if capType.Type == evdev.EV_REL || capType.Type == evdev.EV_KEY {
			return true
		}
	}
	return false
}

// GeometryGet implements Backend.
func (b *HelperBackend) GeometryGet() (geometry.ScreenGeometry, error) {
	return b.geom, nil
}

// PointerQuery implements Backend by returning the internally-integrated
// position; Wayland gives us no absolute query.
func (b *HelperBackend) PointerQuery() (geometry.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos, nil
}

// PointerWarp implements Backend by resetting the internal tracking
// position to pos. There is no compositor-visible effect: this is exactly
// the "warp updates only the internal pointer" limitation spec.md §9(a)
// documents, which is why the entry transition always sends the
// calculated coordinate as its first wire message rather than relying on
// the warp being visible.
func (b *HelperBackend) PointerWarp(pos geometry.Position) error {
	b.mu.Lock()
	b.pos = pos
	b.mu.Unlock()
	return nil
}

// PointerGrab implements Backend by exclusively grabbing every evdev
// pointer device (EVIOCGRAB), so events stop reaching the compositor.
func (b *HelperBackend) PointerGrab() error {
	return b.grabAll()
}

// KeyboardGrab implements Backend; evdev grabs are per-device, not
// per-class, so this shares the same exclusive grab as PointerGrab.
func (b *HelperBackend) KeyboardGrab() error {
	return b.grabAll()
}

func (b *HelperBackend) grabAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.grabbed {
		return nil
	}
	var failed []string
	for _, dev := range b.devices {
		if err := dev.Grab(); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", dev.Name, err))
		}
	}
	if len(failed) > 0 {
		// Release whatever we did grab before reporting failure.
		for _, dev := range b.devices {
			_ = dev.Release()
		}
		return &GrabFailed{Reason: strings.Join(failed, "; ")}
	}
	b.grabbed = true
	return nil
}

// PointerUngrab implements Backend; best-effort.
func (b *HelperBackend) PointerUngrab() error {
	return b.ungrabAll()
}

// KeyboardUngrab implements Backend; best-effort.
func (b *HelperBackend) KeyboardUngrab() error {
	return b.ungrabAll()
}

func (b *HelperBackend) ungrabAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.grabbed {
		return nil
	}
	for _, dev := range b.devices {
		if err := dev.Release(); err != nil {
			logger.Debugf("helper: release %s: %v", dev.Name, err)
		}
	}
	b.grabbed = false
	return nil
}

// CursorHide implements Backend. There is no portable way to hide the
// system cursor from an unprivileged Wayland client; this records intent
// only, matching spec.md's "may silently no-op" contract.
func (b *HelperBackend) CursorHide() error {
	b.mu.Lock()
	b.hidden = true
	b.mu.Unlock()
	return nil
}

// CursorShow implements Backend; see CursorHide.
func (b *HelperBackend) CursorShow() error {
	b.mu.Lock()
	b.hidden = false
	b.mu.Unlock()
	return nil
}

// EventsDrain implements Backend; never blocks.
func (b *HelperBackend) EventsDrain() []RawInputEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

// Close implements Backend.
func (b *HelperBackend) Close() error {
	b.cancel()
	b.wg.Wait()
	for _, dev := range b.devices {
		dev.File.Close()
	}
	return nil
}

func (b *HelperBackend) captureLoop(ctx context.Context, dev *evdev.InputDevice) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		events, err := dev.Read()
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			continue
		}
		for _, ev := range events {
			b.handleEvdevEvent(ev)
		}
	}
}

func (b *HelperBackend) handleEvdevEvent(ev evdev.InputEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch ev.Type {
	case evdev.EV_REL:
		switch ev.Code {
		case evdev.REL_X:
			b.pos.X = clampInt(b.pos.X+int(ev.Value), 0, b.geom.Width-1)
		case evdev.REL_Y:
			b.pos.Y = clampInt(b.pos.Y+int(ev.Value), 0, b.geom.Height-1)
		case evdev.REL_WHEEL:
			b.events = append(b.events, RawInputEvent{Kind: Scroll, ScrollDY: int(ev.Value)})
		case evdev.REL_HWHEEL:
			b.events = append(b.events, RawInputEvent{Kind: Scroll, ScrollDX: int(ev.Value)})
		}
	case evdev.EV_KEY:
		if ev.Code >= evdev.BTN_LEFT && ev.Code <= evdev.BTN_TASK {
			kind := ButtonRelease
			if ev.Value != 0 {
				kind = ButtonPress
			}
			b.events = append(b.events, RawInputEvent{Kind: kind, Button: int(ev.Code - evdev.BTN_LEFT + 1)})
			return
		}
		kind := KeyRelease
		if ev.Value != 0 {
			kind = KeyPress
		}
		b.events = append(b.events, RawInputEvent{Kind: kind, Keycode: int(ev.Code)})
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
