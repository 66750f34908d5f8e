// X11Backend is the native display backend for X11 and XWayland sessions,
// grounded on the xgb usage in the retrieval pack's
// tesselslate/resetti internal/x11 client (QueryPointer, WarpPointer,
// GrabPointer/GrabKeyboard, a background event-reading goroutine appending
// to a mutex-guarded buffer that EventsDrain empties). Cursor hide/show is implemented the classic X11 way: swap the
// root window's cursor for a cursor built from a fully transparent 1x1
// pixmap, rather than depending on the XFixes extension.
package display

import (
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/logger"
)

// X11Backend talks to the X server directly over an xgb connection.
type X11Backend struct {
	conn *xgb.Conn
	root xproto.Window

	blankCursor xproto.Cursor
	origCursor  bool // true once we've overridden the root cursor

	mu           sync.Mutex
	lastKnown    geometry.Position
	events       []RawInputEvent
	pointerGrab  bool
	keyboardGrab bool

	stopPoll chan struct{}
	wg       sync.WaitGroup
}

// NewX11Backend opens a connection to the X server and prepares the
// resources (blank cursor, root window) used by warp/grab/hide.
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("x11: connect: %w", err)
	}

	setup := xproto.Setup(conn)
	if setup == nil || len(setup.Roots) == 0 {
		conn.Close()
		return nil, fmt.Errorf("x11: no screens")
	}
	root := setup.Roots[0].Root

	b := &X11Backend{
		conn:     conn,
		root:     root,
		stopPoll: make(chan struct{}),
	}

	if err := b.makeBlankCursor(); err != nil {
		logger.Warnf("x11: failed to build blank cursor, cursor hide will no-op: %v", err)
	}

	b.wg.Add(1)
	go b.pollEvents()

	return b, nil
}

func (b *X11Backend) makeBlankCursor() error {
	pix, err := xproto.NewPixmapId(b.conn)
	if err != nil {
		return err
	}
	if err := xproto.CreatePixmapChecked(b.conn, 1, pix, xproto.Drawable(b.root), 1, 1).Check(); err != nil {
		return err
	}
	cursor, err := xproto.NewCursorId(b.conn)
	if err != nil {
		return err
	}
	if err := xproto.CreateCursorChecked(b.conn, cursor, pix, pix, 0, 0, 0, 0, 0, 0, 0, 0).Check(); err != nil {
		return err
	}
	b.blankCursor = cursor
	return nil
}

// GeometryGet implements Backend.
func (b *X11Backend) GeometryGet() (geometry.ScreenGeometry, error) {
	setup := xproto.Setup(b.conn)
	screen := setup.Roots[0]
	return geometry.ScreenGeometry{Width: int(screen.WidthInPixels), Height: int(screen.HeightInPixels)}, nil
}

// PointerQuery implements Backend. On failure it returns the last-known
// position and logs, never blocking or propagating.
func (b *X11Backend) PointerQuery() (geometry.Position, error) {
	reply, err := xproto.QueryPointer(b.conn, b.root).Reply()
	if err != nil {
		logger.Debugf("x11: query pointer failed, using last-known: %v", err)
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.lastKnown, nil
	}
	pos := geometry.Position{X: int(reply.RootX), Y: int(reply.RootY)}
	b.mu.Lock()
	b.lastKnown = pos
	b.mu.Unlock()
	return pos, nil
}

// PointerWarp implements Backend. Warp failures are logged, never fatal.
func (b *X11Backend) PointerWarp(pos geometry.Position) error {
	cookie := xproto.WarpPointerChecked(b.conn, xproto.WindowNone, b.root, 0, 0, 0, 0, int16(pos.X), int16(pos.Y))
	if err := cookie.Check(); err != nil {
		logger.Debugf("x11: warp pointer silently dropped: %v", err)
	}
	return nil
}

// PointerGrab implements Backend.
func (b *X11Backend) PointerGrab() error {
	const mask = xproto.EventMaskButtonPress | xproto.EventMaskButtonRelease | xproto.EventMaskPointerMotion
	reply, err := xproto.GrabPointer(
		b.conn, false, b.root, mask,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
		b.root, xproto.CursorNone, xproto.TimeCurrentTime,
	).Reply()
	if err != nil || reply == nil || reply.Status != xproto.GrabStatusSuccess {
		return &GrabFailed{Reason: fmt.Sprintf("pointer grab reply=%+v err=%v", reply, err)}
	}
	b.mu.Lock()
	b.pointerGrab = true
	b.mu.Unlock()
	return nil
}

// PointerUngrab implements Backend; best-effort, errors are swallowed.
func (b *X11Backend) PointerUngrab() error {
	_ = xproto.UngrabPointerChecked(b.conn, xproto.TimeCurrentTime).Check()
	b.mu.Lock()
	b.pointerGrab = false
	b.mu.Unlock()
	return nil
}

// KeyboardGrab implements Backend.
func (b *X11Backend) KeyboardGrab() error {
	reply, err := xproto.GrabKeyboard(
		b.conn, false, b.root, xproto.TimeCurrentTime,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
	).Reply()
	if err != nil || reply == nil || reply.Status != xproto.GrabStatusSuccess {
		return &GrabFailed{Reason: fmt.Sprintf("keyboard grab reply=%+v err=%v", reply, err)}
	}
	b.mu.Lock()
	b.keyboardGrab = true
	b.mu.Unlock()
	return nil
}

// KeyboardUngrab implements Backend; best-effort.
func (b *X11Backend) KeyboardUngrab() error {
	_ = xproto.UngrabKeyboardChecked(b.conn, xproto.TimeCurrentTime).Check()
	b.mu.Lock()
	b.keyboardGrab = false
	b.mu.Unlock()
	return nil
}

// CursorHide implements Backend by overriding the root window's cursor
// attribute with the blank cursor built at startup. No-ops silently if the
// blank cursor could not be created.
func (b *X11Backend) CursorHide() error {
	if b.blankCursor == 0 {
		return nil
	}
	if err := xproto.ChangeWindowAttributesChecked(b.conn, b.root, xproto.CwCursor, []uint32{uint32(b.blankCursor)}).Check(); err != nil {
		logger.Debugf("x11: cursor hide silently dropped: %v", err)
		return nil
	}
	b.origCursor = true
	return nil
}

// CursorShow restores the default root cursor.
func (b *X11Backend) CursorShow() error {
	if !b.origCursor {
		return nil
	}
	if err := xproto.ChangeWindowAttributesChecked(b.conn, b.root, xproto.CwCursor, []uint32{uint32(xproto.CursorNone)}).Check(); err != nil {
		logger.Debugf("x11: cursor show silently dropped: %v", err)
	}
	b.origCursor = false
	return nil
}

// EventsDrain implements Backend; never blocks, returns whatever the
// polling goroutine accumulated since the last call.
func (b *X11Backend) EventsDrain() []RawInputEvent {
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
func (b *X11Backend) Close() error {
	close(b.stopPoll)
	b.wg.Wait()
	b.conn.Close()
	return nil
}

func (b *X11Backend) pollEvents() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopPoll:
			return
		default:
		}
		ev, err := b.conn.WaitForEvent()
		if err != nil || ev == nil {
			continue
		}
		if re, ok := translateX11Event(ev); ok {
			b.mu.Lock()
			b.events = append(b.events, re)
			b.mu.Unlock()
		}
	}
}

func translateX11Event(ev xgb.Event) (RawInputEvent, bool) {
	switch e := ev.(type) {
	case xproto.ButtonPressEvent:
		return RawInputEvent{Kind: ButtonPress, Button: x11Button(e.Detail), Modifiers: uint32(e.State)}, true
	case xproto.ButtonReleaseEvent:
		return RawInputEvent{Kind: ButtonRelease, Button: x11Button(e.Detail), Modifiers: uint32(e.State)}, true
	case xproto.KeyPressEvent:
		return RawInputEvent{Kind: KeyPress, Keycode: int(e.Detail), Modifiers: uint32(e.State)}, true
	case xproto.KeyReleaseEvent:
		return RawInputEvent{Kind: KeyRelease, Keycode: int(e.Detail), Modifiers: uint32(e.State)}, true
	default:
		return RawInputEvent{}, false
	}
}

// x11Button maps X11 core button numbers (2 = middle, 3 = right) onto the
// numbering HelperBackend reports (1 = left, 2 = right, 3 = middle).
func x11Button(detail xproto.Button) int {
	switch detail {
	case 2:
		return 3
	case 3:
		return 2
	default:
		return int(detail)
	}
}
