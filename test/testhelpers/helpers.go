// Package testhelpers provides common utilities for integration tests:
// dialing the WebSocket endpoint and exchanging event envelopes.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/gambitlive/gambit-server/internal/server"
)

// WSClient wraps a WebSocket connection with envelope encoding and a small
// receive buffer. The write pump may coalesce queued frames into one
// newline-separated message, so received frames are split and buffered.
type WSClient struct {
	t       *testing.T
	Conn    *websocket.Conn
	pending [][]byte
}

// Dial connects to the given ws:// URL with the origin header the default
// configuration allows.
func Dial(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err, "websocket dial")

	c := &WSClient{t: t, Conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// DialWithOrigin connects with an arbitrary origin header and returns the
// raw error so tests can assert rejection.
func DialWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Send writes one event envelope.
func (c *WSClient) Send(event string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.Conn.WriteJSON(server.Envelope{Event: event, Data: raw}))
}

// Receive returns the next envelope, waiting up to two seconds.
func (c *WSClient) Receive() server.Envelope {
	c.t.Helper()

	if len(c.pending) == 0 {
		require.NoError(c.t, c.Conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, payload, err := c.Conn.ReadMessage()
		require.NoError(c.t, err, "reading websocket frame")
		c.pending = bytes.Split(payload, []byte{'\n'})
	}

	frame := c.pending[0]
	c.pending = c.pending[1:]

	var env server.Envelope
	require.NoError(c.t, json.Unmarshal(frame, &env), "decoding envelope %q", frame)
	return env
}

// Expect receives the next envelope and requires its event name, returning
// the raw data for further decoding.
func (c *WSClient) Expect(event string) json.RawMessage {
	c.t.Helper()
	env := c.Receive()
	require.Equal(c.t, event, env.Event)
	return env.Data
}

// ExpectSilence requires that nothing arrives for the given duration.
func (c *WSClient) ExpectSilence(d time.Duration) {
	c.t.Helper()

	if len(c.pending) > 0 {
		c.t.Fatalf("expected silence, have buffered frame %q", c.pending[0])
	}
	require.NoError(c.t, c.Conn.SetReadDeadline(time.Now().Add(d)))
	_, payload, err := c.Conn.ReadMessage()
	if err == nil {
		c.t.Fatalf("expected silence, received %q", payload)
	}
}

// Close performs a graceful websocket close.
func (c *WSClient) Close() {
	_ = c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.Conn.Close()
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
