// Package server coordinates client registration, per-room broadcast fan-out,
// and connection cleanup via the Hub type.
package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrHubClosed reports an admission attempt against a hub that is already
// shutting down.
var ErrHubClosed = errors.New("hub is shutting down")

// Hub tracks the live connections of every room and relays broadcast payloads
// to them. Admission runs under the membership mutex so a join and a broadcast
// fan-out can never interleave; removals and fan-out are serialized through
// the Run loop.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan BroadcastMessage
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance with all necessary
// channels. The returned Hub is ready once Run is started in a goroutine.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan BroadcastMessage),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// AdmitClient joins and registers a connection as one step: the join callback
// runs under the membership lock together with the room-map insertion, then
// the read and write pumps start. The callback queues the client's first
// outbound frame, which stays ahead of any broadcast in the send buffer.
func (h *Hub) AdmitClient(client *Client, join func() error) error {
	if err := h.admit(client, join); err != nil {
		return err
	}
	h.startPumps(client)
	return nil
}

// admit runs the join callback and installs the client in its room under one
// lock acquisition, so no fan-out can land between the two. A hub that is
// shutting down rejects admission before the callback runs.
func (h *Hub) admit(client *Client, join func() error) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	if err := join(); err != nil {
		return err
	}

	client.closed = false
	if h.rooms[client.roomID] == nil {
		h.rooms[client.roomID] = make(map[*Client]bool)
	}
	h.rooms[client.roomID][client] = true
	h.wg.Add(2)
	log.Printf("Connection %s registered in room %s. Room connections: %d", client.connID, client.roomID, len(h.rooms[client.roomID]))
	return nil
}

func (h *Hub) startPumps(client *Client) {
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// GetBroadcastChan returns the channel used for relaying payloads to a room.
func (h *Hub) GetBroadcastChan() chan<- BroadcastMessage {
	return h.broadcast
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients, ok := h.rooms[client.roomID]
	if !ok {
		return false
	}
	if _, exists := clients[client]; !exists || client.closed {
		return false
	}

	// Delivery is best-effort: a receiver with a full send buffer is dropped.
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client unregistration and
// room broadcasts. Call it in its own goroutine; it runs until Shutdown
// cancels it.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.unregister:
			h.removeClient(client)

		case broadcastMsg := <-h.broadcast:
			h.handleBroadcast(broadcastMsg)
		}
	}
}

// removeClient drops a client from its room and closes its send channel.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	clients, ok := h.rooms[client.roomID]
	if !ok {
		h.mutex.Unlock()
		return
	}
	if _, exists := clients[client]; !exists {
		h.mutex.Unlock()
		return
	}
	delete(clients, client)
	client.closed = true
	if len(clients) == 0 {
		delete(h.rooms, client.roomID)
	}
	remaining := len(clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)
	log.Printf("Connection %s unregistered from room %s. Room connections: %d", client.connID, client.roomID, remaining)
}

// handleBroadcast fans a payload out to every connection in the target room
// except the sender.
func (h *Hub) handleBroadcast(broadcastMsg BroadcastMessage) {
	clients := h.roomSnapshot(broadcastMsg.RoomID)

	var clientsToRemove []*Client
	for _, client := range clients {
		if broadcastMsg.Sender != nil && client == broadcastMsg.Sender {
			continue
		}
		if !h.safeSend(client, broadcastMsg.Payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	h.removeFailedClients(clientsToRemove)
}

// roomSnapshot returns a thread-safe snapshot of a room's live connections.
func (h *Hub) roomSnapshot(roomID string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients removes clients that failed to receive messages and
// closes their channels.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		clients, ok := h.rooms[client.roomID]
		if !ok {
			continue
		}
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.closed = true
			if len(clients) == 0 {
				delete(h.rooms, client.roomID)
			}
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Connection %s removed from room %s due to full send buffer", client.connID, client.roomID)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes every active client connection and its send channel.
// Run has already exited when this is called, so the unregister path cannot
// race it: closing the send channels here is what lets the write pumps exit
// instead of idling until their next ping tick.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	var clients []*Client
	for _, roomClients := range h.rooms {
		for client := range roomClients {
			client.closed = true
			clients = append(clients, client)
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing connection %s: %v", client.connID, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
