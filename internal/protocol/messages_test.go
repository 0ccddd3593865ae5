// ABOUTME: Tests for protocol envelope encoding and decoding
// ABOUTME: Covers malformed frames and unrecognized message types
package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeValidMessage(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"SESSIONS","payload":[{"sessionId":1,"playing":true,"playlist":{"sessionPlaylistId":1,"tracks":[]}}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != TypeSessions {
		t.Errorf("expected type SESSIONS, got %s", msg.Type)
	}

	var sessions []Session
	if err := json.Unmarshal(msg.Payload, &sessions); err != nil {
		t.Fatalf("failed to parse payload: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != 1 {
		t.Errorf("unexpected sessions: %+v", sessions)
	}
}

func TestDecodeMissingType(t *testing.T) {
	if _, err := Decode([]byte(`{"payload":{}}`)); err == nil {
		t.Error("expected error for envelope without type")
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestDecodeUnrecognizedType(t *testing.T) {
	// Unknown tags must decode cleanly so the router can skip them.
	msg, err := Decode([]byte(`{"type":"SOMETHING_NEW","payload":{"x":1}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != "SOMETHING_NEW" {
		t.Errorf("expected type preserved, got %s", msg.Type)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	data, err := Encode(TypeGetConnectionID, EmptyPayload{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("failed to decode encoded message: %v", err)
	}
	if msg.Type != TypeGetConnectionID {
		t.Errorf("expected type GET_CONNECTION_ID, got %s", msg.Type)
	}
}

func TestUpdateSessionOmitsUnsetFields(t *testing.T) {
	data, err := Encode(TypeUpdateSession, UpdateSession{
		SessionID: 7,
		Target:    AudioZoneTarget(42),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Payload map[string]json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	for _, field := range []string{"seek", "volume", "playlist", "playing"} {
		if _, present := decoded.Payload[field]; present {
			t.Errorf("unset field %s should be omitted", field)
		}
	}
}

func TestPlaybackTargetEquality(t *testing.T) {
	if AudioZoneTarget(1) == AudioZoneTarget(2) {
		t.Error("different zones must not compare equal")
	}
	if AudioZoneTarget(1) != AudioZoneTarget(1) {
		t.Error("same zone must compare equal")
	}
	if AudioZoneTarget(1) == ConnectionOutputTarget("c", "o") {
		t.Error("different target kinds must not compare equal")
	}
}
