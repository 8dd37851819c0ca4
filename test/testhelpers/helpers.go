// Package testhelpers provides common utilities for testing the PirateFishing
// session server.
//
// It contains reusable helpers shared across the integration tests: dialing a
// room's session endpoint, reading typed protocol frames with deadlines, and
// asserting on HTTP responses and close frames.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// SessionURL converts a test server's base URL into the WebSocket URL of a
// room's session endpoint, with the optional display name attached.
func SessionURL(t *testing.T, baseURL, roomID, name string) string {
	t.Helper()

	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("Failed to parse base URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/server/" + roomID
	if name != "" {
		u.RawQuery = url.Values{"name": {name}}.Encode()
	}
	return u.String()
}

// DialRoom opens a session connection against a room, sending the given
// Origin header. The caller owns the returned connection.
func DialRoom(t *testing.T, baseURL, roomID, name, origin string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(SessionURL(t, baseURL, roomID, name), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial room %s: %v", roomID, err)
	}
	return conn
}

// ReadFrame reads one protocol frame within the timeout and returns it as a
// generic JSON object.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]interface{} {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Frame is not valid JSON: %v (%s)", err, raw)
	}
	return decoded
}

// ReadFrameOfType reads one frame and asserts its "type" tag.
func ReadFrameOfType(t *testing.T, conn *websocket.Conn, expectedType string, timeout time.Duration) map[string]interface{} {
	t.Helper()

	frame := ReadFrame(t, conn, timeout)
	if frame["type"] != expectedType {
		t.Fatalf("Expected frame type %q, got %v (frame: %v)", expectedType, frame["type"], frame)
	}
	return frame
}

// ExpectNoFrame asserts that no frame arrives within the timeout. The
// deadline failure leaves the connection unreadable, so this must be the last
// read on the connection; to assert absence on a connection that stays in
// use, send a sentinel frame and assert it is the next one received.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no frame, but received: %s", raw)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of a frame: %v", err)
}

// ExpectClose asserts that the next read fails with the given close code and
// reason text.
func ExpectClose(t *testing.T, conn *websocket.Conn, code int, reason string) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected a close frame, but received: %s", raw)
	}

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("Expected a close error, got %v", err)
	}
	if closeErr.Code != code {
		t.Errorf("Expected close code %d, got %d", code, closeErr.Code)
	}
	if closeErr.Text != reason {
		t.Errorf("Expected close reason %q, got %q", reason, closeErr.Text)
	}
}

// SendPosition reports a position from the client side.
func SendPosition(conn *websocket.Conn, x, y, z float64) error {
	return conn.WriteJSON(map[string]interface{}{
		"type":     "position",
		"position": map[string]float64{"x": x, "y": y, "z": z},
	})
}

// CloseWebSocket gracefully closes a session connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
