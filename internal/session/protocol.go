// Package session is the control surface of the window manager: a
// unix-socket daemon in front of the engine, a client for the CLI and the
// status view, and the length-prefixed message protocol between them. The
// hotkey binding surface is expected to drive this socket.
package session

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vellum-wm/vellum/internal/engine"
)

// Message types. Requests flow client to daemon; every request gets exactly
// one reply.
const (
	// Requests.
	MsgHello      = "hello"
	MsgState      = "state"
	MsgLogs       = "logs"
	MsgSwitch     = "switch"
	MsgMoveTo     = "move-to"
	MsgFocus      = "focus"
	MsgSwap       = "swap"
	MsgSlurp      = "slurp"
	MsgBarf       = "barf"
	MsgRefresh    = "refresh"
	MsgRetile     = "retile"
	MsgJump       = "jump"
	MsgToggleJump = "toggle-jump"
	MsgStop       = "stop"

	// Replies.
	MsgOK    = "ok"
	MsgError = "error"
)

// maxMessageSize bounds one framed message. State reports are small; a
// frame larger than this means a confused peer.
const maxMessageSize = 4 << 20

// Message is one framed protocol message.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message with payload marshalled to JSON.
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// Unmarshal decodes the payload into v.
func (m *Message) Unmarshal(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// WriteMessage frames msg onto w: 4-byte big-endian length, then JSON.
func WriteMessage(w io.Writer, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if len(data) > maxMessageSize {
		return fmt.Errorf("message too large (%d bytes)", len(data))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxMessageSize {
		return nil, fmt.Errorf("invalid message size %d", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

// HelloPayload opens a connection.
type HelloPayload struct {
	ClientID string `json:"client_id"`
	Version  string `json:"version,omitempty"`
}

// HelloReply answers a hello.
type HelloReply struct {
	Version string `json:"version"`
	PID     int    `json:"pid"`
}

// WorkspacePayload names a workspace for switch and move-to.
type WorkspacePayload struct {
	Workspace string `json:"workspace"`
}

// DirectionPayload names a direction for focus and swap.
type DirectionPayload struct {
	Direction string `json:"direction"`
}

// JumpPayload names a jump category.
type JumpPayload struct {
	Category string `json:"category"`
}

// LogsReply carries the engine's recent log ring.
type LogsReply struct {
	Entries []engine.LogEntry `json:"entries"`
}

// ErrorPayload is the error reply body.
type ErrorPayload struct {
	Message string `json:"message"`
}

func errorMessage(format string, args ...any) *Message {
	msg, _ := NewMessage(MsgError, ErrorPayload{Message: fmt.Sprintf(format, args...)})
	return msg
}

var okMessage = &Message{Type: MsgOK}
