package clientapp

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/network"
)

// newTestInjector skips the test if /dev/uinput is not usable, the same way
// the teacher's uinput_test.go gates its integration tests.
func newTestInjector(t *testing.T) *UinputInjector {
	t.Helper()
	if _, err := os.Stat("/dev/uinput"); os.IsNotExist(err) {
		t.Skip("/dev/uinput does not exist - uinput module not loaded")
	}
	inj, err := NewUinputInjector(geometry.ScreenGeometry{Width: 1920, Height: 1080})
	if err != nil {
		t.Skipf("cannot create uinput injector: %v", err)
	}
	return inj
}

func TestUinputInjectorFirstMoveEstablishesBaseline(t *testing.T) {
	inj := newTestInjector(t)
	defer inj.Close()

	require.NoError(t, inj.Apply(network.Message{MsgType: network.MsgMouseEvent, Event: "move", NormX: 0.5, NormY: 0.5}))
	assert.True(t, inj.tracking)
	assert.InDelta(t, 960, inj.curX, 0.5)
	assert.InDelta(t, 540, inj.curY, 0.5)
}

func TestUinputInjectorHideResetsTracking(t *testing.T) {
	inj := newTestInjector(t)
	defer inj.Close()

	require.NoError(t, inj.Apply(network.Message{MsgType: network.MsgMouseEvent, Event: "move", NormX: 0.5, NormY: 0.5}))
	require.NoError(t, inj.Apply(network.HideSignal()))
	assert.False(t, inj.tracking)
}

func TestUinputInjectorRejectsUnknownButton(t *testing.T) {
	inj := newTestInjector(t)
	defer inj.Close()

	require.NoError(t, inj.Apply(network.Message{MsgType: network.MsgMouseEvent, Event: "move", NormX: 0.1, NormY: 0.1}))
	err := inj.Apply(network.Message{MsgType: network.MsgMouseEvent, Event: "press", NormX: 0.1, NormY: 0.1, Button: 9})
	assert.Error(t, err)
}

func TestUinputInjectorKeyEvents(t *testing.T) {
	inj := newTestInjector(t)
	defer inj.Close()

	require.NoError(t, inj.Apply(network.Message{MsgType: network.MsgKeyEvent, Event: "press", Keycode: 30}))
	require.NoError(t, inj.Apply(network.Message{MsgType: network.MsgKeyEvent, Event: "release", Keycode: 30}))
}
