package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tx2tx/tx2tx/internal/geometry"
)

type fakeConn struct{ closed bool }

func (f *fakeConn) Close() error { f.closed = true; return nil }

func TestNewStateStartsCenter(t *testing.T) {
	s := New()
	assert.Equal(t, geometry.Center, s.Context)
	assert.True(t, s.HysteresisElapsed(time.Now(), 200*time.Millisecond))
}

func TestHysteresisElapsed(t *testing.T) {
	s := New()
	now := time.Now()
	s.LastCenterSwitchTime = now
	assert.False(t, s.HysteresisElapsed(now.Add(100*time.Millisecond), 200*time.Millisecond))
	assert.True(t, s.HysteresisElapsed(now.Add(250*time.Millisecond), 200*time.Millisecond))
}

func TestRegistryZombieEviction(t *testing.T) {
	r := NewRegistry()
	oldConn := &fakeConn{}
	r.Register(&Record{Name: "leftbox", Position: geometry.West, Conn: oldConn})

	newConn := &fakeConn{}
	evicted := r.Register(&Record{Name: "leftbox", Position: geometry.West, Conn: newConn})

	require.NotNil(t, evicted)
	assert.True(t, oldConn.closed)

	rec, ok := r.Get("leftbox")
	require.True(t, ok)
	assert.Same(t, newConn, rec.Conn)
}

func TestRegistryByPosition(t *testing.T) {
	r := NewRegistry()
	r.Register(&Record{Name: "leftbox", Position: geometry.West, Conn: &fakeConn{}})
	rec, ok := r.ByPosition(geometry.West)
	require.True(t, ok)
	assert.Equal(t, "leftbox", rec.Name)

	_, ok = r.ByPosition(geometry.East)
	assert.False(t, ok)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&Record{Name: "leftbox", Position: geometry.West, Conn: &fakeConn{}})
	rec := r.Unregister("leftbox")
	require.NotNil(t, rec)
	_, ok := r.Get("leftbox")
	assert.False(t, ok)
	assert.Nil(t, r.Unregister("leftbox"))
}
