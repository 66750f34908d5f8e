package clientapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tx2tx/tx2tx/internal/config"
)

func TestEmergencyReleaseNoteActivityResetsTimer(t *testing.T) {
	injector := &fakeInjector{}
	r := NewReceiver("leftbox", "127.0.0.1:0", config.ReconnectConfig{}, injector)
	er := NewEmergencyRelease(r)

	before := er.lastActivity
	time.Sleep(time.Millisecond)
	er.NoteActivity()

	assert.True(t, er.lastActivity.After(before))
}

func TestEmergencyReleaseHidesInjectorOnRelease(t *testing.T) {
	injector := &fakeInjector{}
	r := NewReceiver("leftbox", "127.0.0.1:0", config.ReconnectConfig{}, injector)
	er := NewEmergencyRelease(r)

	er.release()

	assert.True(t, injector.hidden)
}
