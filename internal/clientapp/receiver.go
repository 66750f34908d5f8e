package clientapp

import (
	"context"
	"sync"
	"time"

	"github.com/tx2tx/tx2tx/internal/config"
	"github.com/tx2tx/tx2tx/internal/logger"
	"github.com/tx2tx/tx2tx/internal/network"
)

// Status reports whether this client currently believes it is the active
// REMOTE target, mirroring the teacher's ControlStatus but collapsed to
// tx2tx's simpler model: a client is either receiving forwarded input or it
// isn't, there is no separate request/release control handshake.
type Status struct {
	BeingForwarded bool
	ConnectedAt    time.Time
}

// Receiver owns the network.Client connection, the reconnect loop from
// spec.md §6's client.reconnect settings, and dispatch of received messages
// into an Injector. Grounded on the teacher's internal/client/receiver.go
// InputReceiver: Connect/Disconnect/IsConnected plus a reconnect goroutine,
// generalized from SSH transport to tx2tx's length-prefixed JSON network.Client
// and from control-event gating to hide-signal gating.
type Receiver struct {
	name    string
	address string
	cfg     config.ReconnectConfig

	injector Injector

	mu             sync.RWMutex
	status         Status
	onStatusChange func(Status)
	onActivity     func()

	cli *network.Client
}

// NewReceiver builds a Receiver that will identify itself as name and
// inject received events via injector.
func NewReceiver(name, address string, reconnect config.ReconnectConfig, injector Injector) *Receiver {
	return &Receiver{name: name, address: address, cfg: reconnect, injector: injector}
}

// OnStatusChange registers a callback invoked whenever BeingForwarded flips.
func (r *Receiver) OnStatusChange(fn func(Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStatusChange = fn
}

// OnActivity registers a callback invoked after every successfully handled
// message, used by EmergencyRelease to reset its idle timer.
func (r *Receiver) OnActivity(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onActivity = fn
}

// Status returns the current forwarding status.
func (r *Receiver) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// IsConnected reports whether the underlying network.Client holds a live
// connection to the server.
func (r *Receiver) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cli != nil && r.cli.IsConnected()
}

// Run connects to the server and processes messages until ctx is
// cancelled, reconnecting per the reconnect settings when the connection
// drops. It returns nil when ctx is cancelled or when an established
// connection drops with reconnect disabled. It returns the connect error
// when a connection attempt fails and either reconnect is disabled or
// max_attempts (> 0) consecutive attempts have failed.
func (r *Receiver) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		cli := network.NewClient(r.name)
		if err := cli.Connect(ctx, r.address); err != nil {
			logger.Warnf("clientapp: connect to %s failed: %v", r.address, err)
			if !r.cfg.Enabled {
				return err
			}
			attempts++
			if r.cfg.MaxAttempts > 0 && attempts >= r.cfg.MaxAttempts {
				return err
			}
			if !sleepOrDone(ctx, time.Duration(r.cfg.DelaySeconds)*time.Second) {
				return nil
			}
			continue
		}

		attempts = 0
		r.mu.Lock()
		r.cli = cli
		r.mu.Unlock()
		r.setForwarded(false)

		r.drain(ctx, cli)

		r.mu.Lock()
		r.cli = nil
		r.mu.Unlock()
		r.setForwarded(false)
		r.injector.Hide()

		if !r.cfg.Enabled || ctx.Err() != nil {
			return nil
		}
		if !sleepOrDone(ctx, time.Duration(r.cfg.DelaySeconds)*time.Second) {
			return nil
		}
	}
}

// drain reads messages from cli until ctx is cancelled or the connection
// drops, injecting each one and tracking the forwarded/hidden transition.
func (r *Receiver) drain(ctx context.Context, cli *network.Client) {
	defer cli.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-cli.Disconnected():
			return
		case msg, ok := <-cli.Messages():
			if !ok {
				return
			}
			r.handle(msg)
		}
	}
}

func (r *Receiver) handle(msg network.Message) {
	if msg.MsgType == network.MsgMouseEvent && network.IsHideSignal(msg) {
		r.setForwarded(false)
		r.injector.Hide()
		return
	}
	r.setForwarded(true)
	if err := r.injector.Apply(msg); err != nil {
		logger.Debugf("clientapp: inject %s failed: %v", msg.MsgType, err)
	}

	r.mu.RLock()
	onActivity := r.onActivity
	r.mu.RUnlock()
	if onActivity != nil {
		onActivity()
	}
}

func (r *Receiver) setForwarded(v bool) {
	r.mu.Lock()
	changed := r.status.BeingForwarded != v
	r.status.BeingForwarded = v
	if v && changed {
		r.status.ConnectedAt = time.Now()
	}
	cb := r.onStatusChange
	status := r.status
	r.mu.Unlock()

	if changed && cb != nil {
		go cb(status)
	}
}

// sleepOrDone waits d or until ctx is cancelled, returning false in the
// latter case.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
