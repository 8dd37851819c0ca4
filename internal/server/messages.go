// Package server defines the JSON session protocol: one struct per message
// variant, tagged by a "type" field, with encode helpers for the outbound
// payloads and a single decode entry point for inbound frames.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message type tags carried in the "type" field of every frame.
const (
	TypeServerData     = "serverData"
	TypeNewPlayer      = "newPlayer"
	TypePosition       = "position"
	TypePlayerPosition = "playerPosition"
	TypeRemovePlayer   = "removePlayer"
)

// ErrUnknownMessageType reports an inbound frame whose "type" tag is not part
// of the protocol. Callers log it and keep the connection open.
var ErrUnknownMessageType = errors.New("unknown message type")

// envelope is the minimal decode used to pick the variant of an inbound frame.
type envelope struct {
	Type string `json:"type"`
}

// ServerInfo is the room snapshot embedded in a serverData message. Players
// never includes the receiving player itself.
type ServerInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	MaxPlayers int      `json:"maxPlayers"`
	Players    []Player `json:"players"`
}

// ServerDataMessage is sent once to a connection immediately after it joins.
type ServerDataMessage struct {
	Type   string     `json:"type"`
	Server ServerInfo `json:"server"`
}

// PlayerEventMessage announces a peer joining (newPlayer) or leaving
// (removePlayer); the payload is the display name only.
type PlayerEventMessage struct {
	Type   string `json:"type"`
	Player string `json:"player"`
}

// PositionMessage is the only recognized client-to-server frame: a report of
// the sender's current position.
type PositionMessage struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

// PlayerPositionMessage relays a peer's position report to the rest of the room.
type PlayerPositionMessage struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Player   string   `json:"player"`
}

// BroadcastMessage is a payload queued for fan-out to every live connection in
// a room except the sender.
type BroadcastMessage struct {
	RoomID  string
	Sender  *Client
	Payload []byte
}

func newServerDataPayload(result *JoinResult) ([]byte, error) {
	return json.Marshal(ServerDataMessage{
		Type: TypeServerData,
		Server: ServerInfo{
			ID:         result.RoomID,
			Name:       result.RoomName,
			MaxPlayers: result.MaxPlayers,
			Players:    result.Peers,
		},
	})
}

func newPlayerPayload(name string) ([]byte, error) {
	return json.Marshal(PlayerEventMessage{Type: TypeNewPlayer, Player: name})
}

func removePlayerPayload(name string) ([]byte, error) {
	return json.Marshal(PlayerEventMessage{Type: TypeRemovePlayer, Player: name})
}

func playerPositionPayload(pos Position, name string) ([]byte, error) {
	return json.Marshal(PlayerPositionMessage{Type: TypePlayerPosition, Position: pos, Player: name})
}

// decodeClientMessage parses an inbound frame into its typed variant. Malformed
// JSON and unrecognized type tags both come back as errors; the connection
// handler logs them and continues rather than terminating the session.
func decodeClientMessage(raw []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch env.Type {
	case TypePosition:
		var msg PositionMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("malformed position message: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
