// Package streaming defines the messages a navigator streams to a live flight viewer.
package streaming

import (
	"encoding/json"

	"github.com/pathnav/navigator/pkg/core"
)

// Message types of the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeEdgeEvent    = "edge_event"
	TypeFrame        = "frame"
	TypeTrack        = "track"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement of a session message.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`
}

// StartSessionPayload announces the vehicle and tick rate of a session.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// NeedsAck reports whether the sender waits for an AckMessage after msgType.
func NeedsAck(msgType string) bool {
	return msgType == TypeStartSession || msgType == TypeEndSession
}
