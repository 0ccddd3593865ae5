// ABOUTME: ZoneSync protocol envelope definitions
// ABOUTME: Tagged JSON messages exchanged with the session server
package protocol

import (
	"encoding/json"
	"fmt"
)

// Server-to-client message types.
const (
	TypeConnectionID          = "CONNECTION_ID"
	TypeConnections           = "CONNECTIONS"
	TypeSessions              = "SESSIONS"
	TypeAudioZoneWithSessions = "AUDIO_ZONE_WITH_SESSIONS"
	TypeSessionUpdated        = "SESSION_UPDATED"
	TypeSetSeek               = "SET_SEEK"
)

// Client-to-server message types. SET_SEEK travels both directions.
const (
	TypeGetConnectionID = "GET_CONNECTION_ID"
	TypeUpdateSession   = "UPDATE_SESSION"
)

// Message is the top-level wrapper for all protocol messages. The
// payload is kept raw so unrecognized types can be skipped cheaply.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a raw frame into an envelope
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("envelope missing type")
	}
	return msg, nil
}

// Encode wraps a payload in an envelope and marshals it
func Encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return json.Marshal(Message{Type: typ, Payload: raw})
}

// EmptyPayload is the body of messages that carry no data
type EmptyPayload struct{}

// ConnectionIDPayload announces the identity the server assigned to
// this connection.
type ConnectionIDPayload struct {
	ConnectionID string `json:"connectionId"`
}
