package clientapp

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tx2tx/tx2tx/internal/logger"
)

// EmergencyReleaseTimeout is how long the client tolerates being forwarded
// without a fresh event before assuming the server's hide signal was lost
// and releasing itself unilaterally.
const EmergencyReleaseTimeout = 60 * time.Second

// EmergencyReleaseFile is a touch-file escape hatch: if present, the client
// disconnects and deletes the file, whether or not it is currently being
// forwarded. Useful when a physical keyboard/mouse is pinned to a
// client that never receives the hide signal.
const EmergencyReleaseFile = "/tmp/tx2tx-client-release"

// EmergencyRelease watches for any of three conditions that should force a
// client to drop its connection regardless of what the server believes:
// a SIGUSR1 signal, an activity timeout while forwarded, or the touch file.
// Grounded on the teacher's internal/client/emergency.go EmergencyRelease,
// generalized from its request/release/switch ControlStatus states to
// tx2tx's single BeingForwarded flag.
type EmergencyRelease struct {
	receiver *Receiver

	mu           sync.Mutex
	lastActivity time.Time
}

// NewEmergencyRelease builds a release handler bound to receiver.
func NewEmergencyRelease(receiver *Receiver) *EmergencyRelease {
	return &EmergencyRelease{receiver: receiver, lastActivity: time.Now()}
}

// Start launches the three monitors as goroutines. They exit when ctx is
// cancelled.
func (er *EmergencyRelease) Start(ctx context.Context) {
	go er.watchSignal(ctx)
	go er.watchActivityTimeout(ctx)
	go er.watchReleaseFile(ctx)
	logger.Info("clientapp: emergency release mechanisms active")
}

// NoteActivity records that an event was just injected, resetting the
// activity timeout.
func (er *EmergencyRelease) NoteActivity() {
	er.mu.Lock()
	er.lastActivity = time.Now()
	er.mu.Unlock()
}

func (er *EmergencyRelease) watchSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			logger.Warn("clientapp: SIGUSR1 received, releasing")
			er.release()
		case <-ctx.Done():
			return
		}
	}
}

func (er *EmergencyRelease) watchActivityTimeout(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !er.receiver.Status().BeingForwarded {
				er.NoteActivity()
				continue
			}
			er.mu.Lock()
			idle := time.Since(er.lastActivity)
			er.mu.Unlock()
			if idle > EmergencyReleaseTimeout {
				logger.Warnf("clientapp: no activity for %v while forwarded, releasing", idle)
				er.release()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (er *EmergencyRelease) watchReleaseFile(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := os.Stat(EmergencyReleaseFile); err == nil {
				logger.Warn("clientapp: release file present, releasing")
				_ = os.Remove(EmergencyReleaseFile)
				er.release()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (er *EmergencyRelease) release() {
	er.receiver.mu.Lock()
	cli := er.receiver.cli
	er.receiver.mu.Unlock()
	if cli != nil {
		cli.Disconnect()
	}
	er.receiver.injector.Hide()
}
