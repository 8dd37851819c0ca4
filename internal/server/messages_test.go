package server

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestServerDataPayloadShape verifies the serverData wire shape, including
// that an empty peer list serializes as [] rather than null.
func TestServerDataPayloadShape(t *testing.T) {
	result := &JoinResult{
		Self:       Player{Identity: "key-a", Name: "meow"},
		Peers:      []Player{},
		RoomID:     "0",
		RoomName:   "pirate-cat",
		MaxPlayers: 10,
	}

	payload, err := newServerDataPayload(result)
	if err != nil {
		t.Fatalf("Failed to encode serverData: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Payload is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeServerData {
		t.Errorf("Expected type %q, got %v", TypeServerData, decoded["type"])
	}

	srv, ok := decoded["server"].(map[string]interface{})
	if !ok {
		t.Fatalf("Missing server object in payload: %s", payload)
	}
	if srv["id"] != "0" || srv["name"] != "pirate-cat" {
		t.Errorf("Unexpected room fields: %v", srv)
	}
	if srv["maxPlayers"] != float64(10) {
		t.Errorf("Expected maxPlayers 10, got %v", srv["maxPlayers"])
	}
	players, ok := srv["players"].([]interface{})
	if !ok {
		t.Fatalf("players must serialize as an array, got %T", srv["players"])
	}
	if len(players) != 0 {
		t.Errorf("Expected empty players array, got %v", players)
	}
}

// TestServerDataPayloadHidesIdentity verifies that the connection identity is
// never serialized into peer entries.
func TestServerDataPayloadHidesIdentity(t *testing.T) {
	result := &JoinResult{
		Self:       Player{Identity: "key-b", Name: "purr"},
		Peers:      []Player{{Identity: "key-a", Name: "meow", Position: Position{X: 1}}},
		RoomID:     "0",
		RoomName:   "fish-web",
		MaxPlayers: 10,
	}

	payload, err := newServerDataPayload(result)
	if err != nil {
		t.Fatalf("Failed to encode serverData: %v", err)
	}

	var decoded ServerDataMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Failed to decode serverData: %v", err)
	}
	if len(decoded.Server.Players) != 1 {
		t.Fatalf("Expected one peer, got %d", len(decoded.Server.Players))
	}
	if decoded.Server.Players[0].Identity != "" {
		t.Errorf("Identity leaked into the wire payload")
	}
	if decoded.Server.Players[0].Name != "meow" {
		t.Errorf("Expected peer name %q, got %q", "meow", decoded.Server.Players[0].Name)
	}
}

// TestPlayerEventPayloads verifies the newPlayer and removePlayer shapes.
func TestPlayerEventPayloads(t *testing.T) {
	tests := []struct {
		name         string
		encode       func(string) ([]byte, error)
		expectedType string
	}{
		{"newPlayer", newPlayerPayload, TypeNewPlayer},
		{"removePlayer", removePlayerPayload, TypeRemovePlayer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := tt.encode("meow")
			if err != nil {
				t.Fatalf("Failed to encode: %v", err)
			}
			var decoded PlayerEventMessage
			if err := json.Unmarshal(payload, &decoded); err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if decoded.Type != tt.expectedType {
				t.Errorf("Expected type %q, got %q", tt.expectedType, decoded.Type)
			}
			if decoded.Player != "meow" {
				t.Errorf("Expected player %q, got %q", "meow", decoded.Player)
			}
		})
	}
}

// TestPlayerPositionPayload verifies the relay shape for position updates.
func TestPlayerPositionPayload(t *testing.T) {
	payload, err := playerPositionPayload(Position{X: 1, Y: 0, Z: 2}, "meow")
	if err != nil {
		t.Fatalf("Failed to encode playerPosition: %v", err)
	}

	var decoded PlayerPositionMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Failed to decode playerPosition: %v", err)
	}
	if decoded.Type != TypePlayerPosition {
		t.Errorf("Expected type %q, got %q", TypePlayerPosition, decoded.Type)
	}
	if decoded.Position != (Position{X: 1, Y: 0, Z: 2}) {
		t.Errorf("Unexpected position: %+v", decoded.Position)
	}
	if decoded.Player != "meow" {
		t.Errorf("Expected player %q, got %q", "meow", decoded.Player)
	}
}

// TestDecodeClientMessage verifies inbound dispatch: a valid position frame
// decodes to its variant, while malformed JSON and unknown tags are errors
// that the caller treats as protocol violations.
func TestDecodeClientMessage(t *testing.T) {
	decoded, err := decodeClientMessage([]byte(`{"type":"position","position":{"x":1,"y":0,"z":2}}`))
	if err != nil {
		t.Fatalf("Failed to decode valid position message: %v", err)
	}
	msg, ok := decoded.(PositionMessage)
	if !ok {
		t.Fatalf("Expected PositionMessage, got %T", decoded)
	}
	if msg.Position != (Position{X: 1, Y: 0, Z: 2}) {
		t.Errorf("Unexpected position: %+v", msg.Position)
	}

	if _, err := decodeClientMessage([]byte("not valid json")); err == nil {
		t.Error("Expected an error for malformed JSON")
	}

	_, err = decodeClientMessage([]byte(`{"type":"fireCannon"}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Expected ErrUnknownMessageType, got %v", err)
	}

	_, err = decodeClientMessage([]byte(`{}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Expected ErrUnknownMessageType for missing tag, got %v", err)
	}
}
