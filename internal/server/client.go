// Package server manages individual WebSocket connections, handling the
// read/write pumps, inbound message dispatch, and room cleanup on close.
package server

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is the explicit association between a live socket and its joined
// (room, player) pair. Application state lives here, never on the transport
// object itself. The room's player entry is owned by the registry; the client
// removes it when the connection closes.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	registry       *Registry
	connID         string
	addr           string
	roomID         string
	identity       string
	name           string
	closed         bool
	maxMessageSize int64
}

// NewClient creates a Client for a connection that has already passed the join
// handshake. The send channel is buffered so the serverData snapshot can be
// queued before the write pump starts. The connID is a server-side correlation
// id used only in logs.
func NewClient(conn *websocket.Conn, hub *Hub, registry *Registry, addr, roomID, identity, name string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		registry:       registry,
		connID:         uuid.NewString(),
		addr:           addr,
		roomID:         roomID,
		identity:       identity,
		name:           name,
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// queue places a payload on the client's send buffer without going through the
// hub. Used for the serverData snapshot, which targets only this connection.
func (c *Client) queue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		log.Printf("Connection %s send buffer full while queueing; dropping payload", c.connID)
	}
}

// relay hands a payload to the hub for fan-out to the rest of the room.
func (c *Client) relay(payload []byte) {
	msg := BroadcastMessage{RoomID: c.roomID, Sender: c, Payload: payload}
	select {
	case c.hub.broadcast <- msg:
	case <-c.hub.ctx.Done():
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.connID, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.connID, err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.connID, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Connection %s (%s) disconnected: %v", c.connID, c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Connection %s closed: %v", c.connID, err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.Printf("Unexpected WebSocket error from %s: %v", c.connID, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.connID, err)
	return true
}

// processMessage decodes an inbound frame and dispatches it by type. A
// malformed frame is a protocol violation: logged, then ignored, so one bad
// message never terminates the session or affects other connections.
func (c *Client) processMessage(rawMessage []byte) bool {
	decoded, err := decodeClientMessage(rawMessage)
	if err != nil {
		log.Printf("Protocol violation from %s: %v", c.connID, err)
		return false
	}

	switch msg := decoded.(type) {
	case PositionMessage:
		return c.handlePositionMessage(msg)
	default:
		// decodeClientMessage only produces the variants handled above.
		log.Printf("Unhandled message variant %T from %s", decoded, c.connID)
		return false
	}
}

// handlePositionMessage records the new position and relays it to the room.
// If the player record is already gone the update is simply discarded.
func (c *Client) handlePositionMessage(msg PositionMessage) bool {
	if err := c.registry.UpdatePosition(c.roomID, c.identity, msg.Position); err != nil {
		if errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrRoomNotFound) {
			return false
		}
		log.Printf("Error updating position for %s: %v", c.connID, err)
		return false
	}

	payload, err := playerPositionPayload(msg.Position, c.name)
	if err != nil {
		log.Printf("Error encoding position relay for %s: %v", c.connID, err)
		return false
	}

	c.relay(payload)
	return true
}

// handleDisconnect removes this connection's player from the room and, if the
// removal succeeded, notifies the remaining peers. Runs exactly once, when the
// read pump exits.
func (c *Client) handleDisconnect() {
	player, err := c.registry.Leave(c.roomID, c.identity)
	if err != nil {
		return
	}

	log.Printf("Player %q left room %s (connection %s)", player.Name, c.roomID, c.connID)

	payload, err := removePlayerPayload(player.Name)
	if err != nil {
		log.Printf("Error encoding leave notification for %s: %v", c.connID, err)
		return
	}
	c.relay(payload)
}

func (c *Client) readPump() {
	defer func() {
		c.handleDisconnect()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.connID, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.connID, err)
		}
	}
	return false
}

// writeTextMessage writes a payload as its own frame, then flushes anything
// queued behind it. One protocol message per frame keeps the client-side JSON
// parsing simple and preserves per-sender ordering.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		log.Printf("Error writing message to %s: %v", c.connID, err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		if !c.writeQueuedMessage() {
			return false
		}
	}
	return true
}

// writeQueuedMessage writes a single queued payload as its own frame
func (c *Client) writeQueuedMessage() bool {
	message, ok := <-c.send
	if !ok {
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		log.Printf("Error writing queued message to %s: %v", c.connID, err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.connID, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing ping message to %s: %v", c.connID, err)
		}
		return false
	}
	return true
}
