// Package network implements the wire protocol and transport from spec.md
// §5/§6: length-delimited JSON over TCP, one JSON object per message, with
// accept/IO split onto separate goroutines from the core tick loop. The
// framing technique (4-byte big-endian length prefix, io.ReadFull) is
// grounded on the teacher's internal/network/protocol.go; the payload codec
// is encoding/json rather than protobuf because spec.md §6 mandates JSON.
package network

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single message, guarding against a corrupt or
// hostile length prefix forcing an unbounded allocation.
const MaxMessageSize = 64 * 1024

// ProtocolVersion is advertised in the server's hello reply.
const ProtocolVersion = "1"

// MsgType enumerates the spec.md §6 message kinds.
type MsgType string

const (
	MsgHello      MsgType = "hello"
	MsgScreenInfo MsgType = "screen_info"
	MsgMouseEvent MsgType = "mouse_event"
	MsgKeyEvent   MsgType = "key_event"
	MsgKeepalive  MsgType = "keepalive"
	MsgError      MsgType = "error"
)

// ScreenSize is the optional screen payload carried on hello.
type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Message is the single envelope every wire message is marshalled as. Only
// the fields relevant to MsgType are populated; the rest are omitted.
type Message struct {
	MsgType MsgType `json:"msg_type"`

	// hello
	Name    string      `json:"name,omitempty"`
	Version string      `json:"version,omitempty"`
	Screen  *ScreenSize `json:"screen,omitempty"`

	// screen_info
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// mouse_event / key_event
	Event  string  `json:"event,omitempty"`
	NormX  float64 `json:"norm_x,omitempty"`
	NormY  float64 `json:"norm_y,omitempty"`
	Button int     `json:"button,omitempty"`
	Delta  int     `json:"delta,omitempty"`

	Keycode int `json:"keycode,omitempty"`
	Keysym  int `json:"keysym,omitempty"`

	// error
	ErrMessage string `json:"message,omitempty"`
}

// HideSignal is the sentinel mouse_event that tells a client to hide its
// cursor and stop injecting until the next coordinate (spec.md §6).
func HideSignal() Message {
	return Message{MsgType: MsgMouseEvent, Event: "move", NormX: -1.0, NormY: -1.0}
}

// IsHideSignal reports whether msg is the hide sentinel.
func IsHideSignal(msg Message) bool {
	return msg.MsgType == MsgMouseEvent && msg.NormX == -1.0 && msg.NormY == -1.0
}

// WriteMessage marshals msg as JSON and writes it to w with a 4-byte
// big-endian length prefix.
func WriteMessage(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("network: marshal message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("network: message too large: %d bytes", len(data))
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("network: write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("network: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed JSON message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Message{}, err
	}
	if length == 0 || length > MaxMessageSize {
		return Message{}, fmt.Errorf("network: invalid message length: %d", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, fmt.Errorf("network: read payload: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(buf, &msg); err != nil {
		return Message{}, fmt.Errorf("network: unmarshal message: %w", err)
	}
	return msg, nil
}
