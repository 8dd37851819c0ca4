// Package server exposes the HTTP surface: the room discovery endpoint, the
// per-room WebSocket session endpoint, and a health check.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Close reasons sent with the single handshake-rejection close code (1008).
const (
	reasonInvalidIdentity = "Invalid socket id!"
	reasonRoomFull        = "Server is full!"
	reasonRoomNotFound    = "Server does not exist!"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// RoomListHandler returns the discovery endpoint: a read-only JSON summary of
// every room with its current occupancy. Safe to poll; player details are
// never exposed here.
func RoomListHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(registry.ListRooms()); err != nil {
			log.Printf("Error writing room list response: %v", err)
		}
	}
}

// SessionHandler upgrades a request against /server/{id} and runs the join
// handshake: derive the connection identity, check the room and its capacity,
// and only then admit the player. Every rejection closes the socket with close
// code 1008 and a human-readable reason; no room state is mutated on rejection.
func SessionHandler(hub *Hub, registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("id")
		identity := r.Header.Get("Sec-WebSocket-Key")
		displayName := r.URL.Query().Get("name")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for room %s: %v", roomID, err)
			return
		}

		if identity == "" {
			rejectConnection(conn, reasonInvalidIdentity)
			return
		}

		client := NewClient(conn, hub, registry, r.RemoteAddr, roomID, identity, displayName)

		// The registry join and hub membership happen as one admission step,
		// so a member visible in serverData or discovery counts can never miss
		// a concurrent broadcast. The queued snapshot stays the first frame.
		var result *JoinResult
		err = hub.AdmitClient(client, func() error {
			res, joinErr := registry.TryJoin(roomID, identity, displayName)
			if joinErr != nil {
				return joinErr
			}
			serverData, encodeErr := newServerDataPayload(res)
			if encodeErr != nil {
				if _, leaveErr := registry.Leave(roomID, identity); leaveErr != nil {
					log.Printf("Error rolling back join for room %s: %v", roomID, leaveErr)
				}
				return encodeErr
			}
			client.name = res.Self.Name
			client.queue(serverData)
			result = res
			return nil
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrRoomNotFound):
				rejectConnection(conn, reasonRoomNotFound)
			case errors.Is(err, ErrRoomFull):
				rejectConnection(conn, reasonRoomFull)
			case errors.Is(err, ErrIdentityTaken):
				// Duplicate identity means the handshake key is unusable.
				rejectConnection(conn, reasonInvalidIdentity)
			default:
				log.Printf("Join failed for room %s: %v", roomID, err)
				_ = conn.Close()
			}
			return
		}

		log.Printf("Player %q joined room %s (connection %s)", result.Self.Name, roomID, client.connID)

		if payload, err := newPlayerPayload(result.Self.Name); err == nil {
			client.relay(payload)
		} else {
			log.Printf("Error encoding join notification for %s: %v", client.connID, err)
		}
	}
}

// rejectConnection closes an upgraded socket with the shared policy-violation
// close code and the given reason, before any room mutation has happened.
func rejectConnection(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(writeWait)
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing rejection close frame: %v", err)
		}
	}
	if err := conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing rejected connection: %v", err)
		}
	}
	log.Printf("Rejected connection: %s", reason)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "PirateFishing server is running!")
}
