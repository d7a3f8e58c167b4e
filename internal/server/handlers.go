// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test console.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler returns a handler that upgrades requests and registers
// the resulting client with the hub, which launches the pump goroutines.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", "error", err)
			return
		}

		hub.register <- NewClient(conn, hub, r.RemoteAddr)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Gambit server is running!")
}

// TestPageHandler serves a small HTML console for exercising the room
// protocol by hand: create or join a room, then send moves and chat.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Gambit Room Console</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
            white-space: pre-wrap;
        }
        input[type="text"] { padding: 5px; margin-right: 6px; }
        button { padding: 5px 12px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>Gambit Room Console</h1>
    <div>
        <input type="text" id="name" placeholder="username">
        <button onclick="setName()">Set name</button>
        <button onclick="createRoom()">Create room</button>
        <input type="text" id="room" placeholder="room id">
        <button onclick="joinRoom()">Join room</button>
    </div>
    <div>
        <input type="text" id="move" placeholder='move, e.g. {"from":"e2","to":"e4"}'>
        <button onclick="sendMove()">Send move</button>
        <input type="text" id="chat" placeholder="chat message">
        <button onclick="sendChat()">Send chat</button>
        <button onclick="closeRoom()">Close room</button>
    </div>
    <div id="log"></div>

    <script>
        let roomId = '';
        const log = document.getElementById('log');
        const ws = new WebSocket('ws://' + location.host + '/ws');

        function print(line) {
            log.textContent += line + '\n';
            log.scrollTop = log.scrollHeight;
        }

        function emit(event, data) {
            ws.send(JSON.stringify({event: event, data: data}));
        }

        ws.onopen = () => print('connected');
        ws.onclose = () => print('disconnected');
        ws.onmessage = (e) => {
            for (const line of e.data.split('\n')) {
                const msg = JSON.parse(line);
                print('<- ' + msg.event + ' ' + JSON.stringify(msg.data));
                if (msg.event === 'roomCreated' || msg.event === 'roomJoined') {
                    roomId = msg.data.roomId;
                    document.getElementById('room').value = roomId;
                }
            }
        };

        function setName() { emit('username', {username: document.getElementById('name').value}); }
        function createRoom() { emit('createRoom', {}); }
        function joinRoom() { emit('joinRoom', {roomId: document.getElementById('room').value}); }
        function sendMove() {
            emit('move', {room: roomId, move: JSON.parse(document.getElementById('move').value)});
        }
        function sendChat() { emit('chat', {roomId: roomId, message: document.getElementById('chat').value}); }
        function closeRoom() { emit('closeRoom', {roomId: roomId}); }
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Warn("writing test page response", "error", err)
	}
}
