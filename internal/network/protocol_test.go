package network

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := Message{MsgType: MsgMouseEvent, Event: "move", NormX: 0.25, NormY: 0.75}
	require.NoError(t, WriteMessage(&buf, msg))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestHideSignal(t *testing.T) {
	hs := HideSignal()
	assert.Equal(t, -1.0, hs.NormX)
	assert.Equal(t, -1.0, hs.NormY)
	assert.Equal(t, MsgMouseEvent, hs.MsgType)
}

func TestReadMessageRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := ReadMessage(&buf)
	assert.Error(t, err)
}

func TestReadMessageRejectsZeroLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x00})
	_, err := ReadMessage(&buf)
	assert.Error(t, err)
}

func TestWriteMessageRejectsTooLarge(t *testing.T) {
	var buf bytes.Buffer
	msg := Message{MsgType: MsgError, ErrMessage: string(make([]byte, MaxMessageSize+1))}
	err := WriteMessage(&buf, msg)
	assert.Error(t, err)
}
