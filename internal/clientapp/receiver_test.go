package clientapp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tx2tx/tx2tx/internal/config"
	"github.com/tx2tx/tx2tx/internal/geometry"
	"github.com/tx2tx/tx2tx/internal/network"
	"github.com/tx2tx/tx2tx/internal/state"
)

type fakeInjector struct {
	applied []network.Message
	hidden  bool
	closed  bool
}

func (f *fakeInjector) Apply(msg network.Message) error {
	f.applied = append(f.applied, msg)
	return nil
}
func (f *fakeInjector) Hide()        { f.hidden = true }
func (f *fakeInjector) Close() error { f.closed = true; return nil }

func startLoopbackServer(t *testing.T, maxClients int) *network.Server {
	t.Helper()
	registry := state.NewRegistry()
	resolver := func(name string) (geometry.Context, bool) {
		return geometry.West, name == "leftbox"
	}
	srv := network.NewServer("127.0.0.1", 0, registry, maxClients, resolver)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return srv
}

func TestReceiverInjectsForwardedMessages(t *testing.T) {
	srv := startLoopbackServer(t, 4)

	injector := &fakeInjector{}
	r := NewReceiver("leftbox", srv.Address(), config.ReconnectConfig{Enabled: false}, injector)

	var statuses []Status
	r.OnStatusChange(func(s Status) { statuses = append(statuses, s) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.IsConnected() }, time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Send("leftbox", network.Message{MsgType: network.MsgMouseEvent, Event: "move", NormX: 0.5, NormY: 0.5}))

	require.Eventually(t, func() bool { return len(injector.applied) >= 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, r.Status().BeingForwarded)

	require.NoError(t, srv.Send("leftbox", network.HideSignal()))
	require.Eventually(t, func() bool { return injector.hidden }, time.Second, 10*time.Millisecond)
	assert.False(t, r.Status().BeingForwarded)

	cancel()
}

func TestReceiverStopsOnContextCancel(t *testing.T) {
	srv := startLoopbackServer(t, 4)

	injector := &fakeInjector{}
	r := NewReceiver("leftbox", srv.Address(), config.ReconnectConfig{Enabled: false}, injector)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.IsConnected() }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestReceiverFailsImmediatelyWhenReconnectDisabled(t *testing.T) {
	injector := &fakeInjector{}
	r := NewReceiver("leftbox", "127.0.0.1:1", config.ReconnectConfig{Enabled: false}, injector)

	err := r.Run(context.Background())
	assert.Error(t, err)
}
