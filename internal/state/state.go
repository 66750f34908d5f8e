// Package state holds the process-wide ServerState and the client
// registry, per spec.md §3. ServerState is a plain struct, not a
// module-level singleton: the engine owns one instance and passes it
// explicitly to the transition controller and forwarder, so no lock is
// needed on it (it is only ever touched from the main tick goroutine).
package state

import (
	"sync"
	"time"

	"github.com/tx2tx/tx2tx/internal/geometry"
)

// State is the server's global context state machine plus the bookkeeping
// the transition controller and forwarder need across ticks.
type State struct {
	Context               geometry.Context
	LastCenterSwitchTime  time.Time
	BoundaryCrossed       bool
	TargetWarpPosition    *geometry.Position
	LastSentPosition      *geometry.NormalizedPoint
}

// New returns a State initialized to CENTER, per spec.md §3.
func New() *State {
	return &State{Context: geometry.Center}
}

// ClearLastSent implements invariant I4: last_sent_position is nil
// immediately after every context change.
func (s *State) ClearLastSent() {
	s.LastSentPosition = nil
}

// HysteresisElapsed reports whether at least delay has passed since the
// last CENTER return, gating bounce per spec.md §4.4.
func (s *State) HysteresisElapsed(now time.Time, delay time.Duration) bool {
	if s.LastCenterSwitchTime.IsZero() {
		return true
	}
	return now.Sub(s.LastCenterSwitchTime) >= delay
}

// Record is a connected client: its name, its bound cardinal position (if
// any), and an opaque send handle supplied by the network layer.
type Record struct {
	Name     string
	Position geometry.Context // Center means unbound
	Conn     ConnHandle
}

// ConnHandle is the minimal capability the state package needs from a
// network connection: something to compare for identity and close on
// eviction. The concrete type is network's unexported *conn; kept as an interface here
// so state has no import-time dependency on network.
type ConnHandle interface {
	Close() error
}

// Registry tracks connected ClientRecords, keyed by name. Mutated by
// network I/O goroutines (on handshake/disconnect); reads and writes are
// guarded by a mutex, per spec.md §3's lifecycle note.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Record
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Record)}
}

// Register adds or replaces a client by name. If a client with the same
// name already exists (a "zombie"), its connection is closed and it is
// evicted before the new record takes its place, per spec.md §3's zombie
// eviction rule. Returns the evicted record, if any; the caller
// (network.Server's handshake path) logs the eviction.
func (r *Registry) Register(rec *Record) (evicted *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.clients[rec.Name]; ok {
		_ = prior.Conn.Close()
		evicted = prior
	}
	r.clients[rec.Name] = rec
	return evicted
}

// Unregister removes a client by name and returns the removed record, if
// any.
func (r *Registry) Unregister(name string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.clients[name]
	if !ok {
		return nil
	}
	delete(r.clients, name)
	return rec
}

// Get returns the client record for name, if connected.
func (r *Registry) Get(name string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.clients[name]
	return rec, ok
}

// ByPosition returns the client bound to the given context (WEST/EAST/
// NORTH/SOUTH), if one is currently connected.
func (r *Registry) ByPosition(pos geometry.Context) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.clients {
		if rec.Position == pos {
			return rec, true
		}
	}
	return nil, false
}

// Names returns the names of all connected clients.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
