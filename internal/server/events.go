// Package server defines the JSON event envelope and payload types exchanged
// with game clients over the WebSocket connection.
package server

import "encoding/json"

// Inbound event names accepted from clients.
const (
	EventUsername   = "username"
	EventCreateRoom = "createRoom"
	EventJoinRoom   = "joinRoom"
	EventMove       = "move"
	EventChat       = "chat"
	EventCloseRoom  = "closeRoom"
)

// Outbound event names sent to clients.
const (
	EventRoomCreated        = "roomCreated"
	EventRoomJoined         = "roomJoined"
	EventJoinFailed         = "joinFailed"
	EventOpponentJoined     = "opponentJoined"
	EventChatMessage        = "chatMessage"
	EventPlayerDisconnected = "playerDisconnected"
)

// Envelope is the frame format for every message in either direction.
// Data stays raw so relayed payloads pass through untouched.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UsernamePayload records a display name against the connection.
type UsernamePayload struct {
	Username string `json:"username"`
}

// RoomCreatedPayload answers a createRoom request with the generated room id.
type RoomCreatedPayload struct {
	RoomID string `json:"roomId"`
}

// JoinRoomPayload identifies the room a client wants to enter.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// JoinFailedPayload is returned to the requester only; join failures are
// never broadcast.
type JoinFailedPayload struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// MovePayload carries an opaque move for a room. The coordinator never
// inspects the move itself.
type MovePayload struct {
	Room string          `json:"room"`
	Move json.RawMessage `json:"move"`
}

// ChatPayload is an inbound chat message for a room.
type ChatPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// ChatMessagePayload is the outbound form of a relayed chat message.
type ChatMessagePayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// CloseRoomPayload names the room being closed, in both directions.
type CloseRoomPayload struct {
	RoomID string `json:"roomId"`
}

// PlayerDisconnectedPayload tells the remaining occupant who left.
type PlayerDisconnectedPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// encodeEvent wraps data in an Envelope and marshals the whole frame.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
