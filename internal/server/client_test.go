package server

import (
	"testing"
	"time"
)

// TestProcessMessagePosition verifies the joined-loop dispatch: a position
// frame updates the registry and is relayed to the rest of the room.
func TestProcessMessagePosition(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	reg := NewRegistry(1, 10)
	if _, err := reg.TryJoin("0", "key-a", "meow"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, err := reg.TryJoin("0", "key-b", "purr"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	sender := newTestClient(hub, reg, "0", "key-a", "meow")
	receiver := newTestClient(hub, reg, "0", "key-b", "purr")
	addToRoom(hub, sender)
	addToRoom(hub, receiver)

	if !sender.processMessage([]byte(`{"type":"position","position":{"x":1,"y":0,"z":2}}`)) {
		t.Fatal("Expected position message to be processed")
	}

	select {
	case payload := <-receiver.send:
		expected := `{"type":"playerPosition","position":{"x":1,"y":0,"z":2},"player":"meow"}`
		if string(payload) != expected {
			t.Errorf("Expected relay payload %s, got %s", expected, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("Receiver did not get the position relay")
	}

	// The registry must carry the last reported position.
	result, err := reg.TryJoin("0", "key-c", "observer")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	for _, peer := range result.Peers {
		if peer.Name == "meow" && peer.Position != (Position{X: 1, Y: 0, Z: 2}) {
			t.Errorf("Registry position not updated: %+v", peer.Position)
		}
	}
}

// TestProcessMessageProtocolViolations verifies that malformed frames and
// unknown types are dropped without affecting the session or the room.
func TestProcessMessageProtocolViolations(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	reg := NewRegistry(1, 10)
	if _, err := reg.TryJoin("0", "key-a", "meow"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	sender := newTestClient(hub, reg, "0", "key-a", "meow")
	receiver := newTestClient(hub, reg, "0", "key-b", "purr")
	addToRoom(hub, sender)
	addToRoom(hub, receiver)

	frames := [][]byte{
		[]byte("not valid json"),
		[]byte(`{"type":"castRod"}`),
		[]byte(`{"position":{"x":1}}`),
	}
	for _, frame := range frames {
		if sender.processMessage(frame) {
			t.Errorf("Frame %q should not have been processed", frame)
		}
	}

	select {
	case payload := <-receiver.send:
		t.Errorf("No relay expected for protocol violations, got %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestPositionAfterLeaveIsDiscarded verifies the benign no-op when a position
// report races the player's own removal.
func TestPositionAfterLeaveIsDiscarded(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	reg := NewRegistry(1, 10)
	if _, err := reg.TryJoin("0", "key-a", "meow"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	sender := newTestClient(hub, reg, "0", "key-a", "meow")
	receiver := newTestClient(hub, reg, "0", "key-b", "purr")
	addToRoom(hub, sender)
	addToRoom(hub, receiver)

	if _, err := reg.Leave("0", "key-a"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}

	if sender.processMessage([]byte(`{"type":"position","position":{"x":1,"y":0,"z":2}}`)) {
		t.Error("Position from a removed player should be discarded")
	}

	select {
	case payload := <-receiver.send:
		t.Errorf("No relay expected after leave, got %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestHandleDisconnect verifies close-time cleanup: the player is removed from
// the registry exactly once and peers get one removePlayer notification.
func TestHandleDisconnect(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	reg := NewRegistry(1, 10)
	if _, err := reg.TryJoin("0", "key-a", "meow"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	leaver := newTestClient(hub, reg, "0", "key-a", "meow")
	peer := newTestClient(hub, reg, "0", "key-b", "purr")
	addToRoom(hub, leaver)
	addToRoom(hub, peer)

	leaver.handleDisconnect()

	select {
	case payload := <-peer.send:
		expected := `{"type":"removePlayer","player":"meow"}`
		if string(payload) != expected {
			t.Errorf("Expected %s, got %s", expected, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("Peer did not get the removePlayer notification")
	}

	if occupancy(t, reg, "0") != 0 {
		t.Errorf("Expected empty room after disconnect")
	}

	// A second disconnect of the same identity must not notify anyone.
	leaver.handleDisconnect()
	select {
	case payload := <-peer.send:
		t.Errorf("No notification expected for a repeated disconnect, got %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}
