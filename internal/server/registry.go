// Package server implements the session registry: the process-wide mapping
// from room id to room state, and the only place room membership changes.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Join failures, surfaced synchronously to the requester only.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomEmpty     = errors.New("room is empty")
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadyInRoom = errors.New("already in this room")
)

// Registry holds every live room. It starts empty, is rebuilt from zero on
// restart, and every mutating operation runs under one mutex so concurrent
// joins can never push a room past capacity. The member map is a reverse
// index from participant id to room id, keeping disconnect handling O(1).
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	member map[string]string
	log    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:  make(map[string]*Room),
		member: make(map[string]string),
		log:    logger,
	}
}

// outbound is a notification prepared under the registry lock and delivered
// after it is released, so a slow peer never extends the critical section.
type outbound struct {
	to      []*Client
	payload []byte
}

func (o outbound) deliver() {
	for _, c := range o.to {
		c.trySend(o.payload)
	}
}

func (reg *Registry) notify(to []*Client, event string, data any) outbound {
	payload, err := encodeEvent(event, data)
	if err != nil {
		reg.log.Error("encoding notification", "event", event, "error", err)
		return outbound{}
	}
	return outbound{to: to, payload: payload}
}

// CreateRoom opens a room with p as its sole occupant and returns the
// generated room id. The id is a v4 UUID; it doubles as the admission
// credential, so it must stay unguessable.
func (reg *Registry) CreateRoom(p *Client) string {
	id := uuid.NewString()

	reg.mu.Lock()
	reg.rooms[id] = newRoom(id, p)
	reg.member[p.ID()] = id
	total := len(reg.rooms)
	reg.mu.Unlock()

	reg.log.Info("room created", "room", id, "player", p.ID(), "rooms", total)
	return id
}

// JoinRoom adds p to the room as its second occupant. On success the
// existing occupant is notified with opponentJoined and the updated snapshot
// is returned; on failure nothing is broadcast.
func (reg *Registry) JoinRoom(roomID string, p *Client) (RoomSnapshot, error) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return RoomSnapshot{}, ErrRoomNotFound
	}
	if room.contains(p) {
		// a participant appears in a room at most once
		reg.mu.Unlock()
		return RoomSnapshot{}, ErrAlreadyInRoom
	}
	switch {
	case len(room.Players) == 0:
		// Empty rooms are deleted eagerly; reaching this means the registry
		// lost track of an occupant.
		reg.mu.Unlock()
		return RoomSnapshot{}, ErrRoomEmpty
	case len(room.Players) >= roomCapacity:
		reg.mu.Unlock()
		return RoomSnapshot{}, ErrRoomFull
	}

	room.Players = append(room.Players, p)
	reg.member[p.ID()] = roomID
	snap := room.snapshot()
	note := reg.notify(room.others(p), EventOpponentJoined, snap)
	reg.mu.Unlock()

	note.deliver()
	reg.log.Info("player joined", "room", roomID, "player", p.ID())
	return snap, nil
}

// RelayMove forwards an opaque move to every occupant of the room except the
// sender. A move for a room that no longer exists is stale, not an error.
func (reg *Registry) RelayMove(roomID string, move json.RawMessage, sender *Client) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		reg.log.Debug("dropping move for missing room", "room", roomID)
		return
	}
	note := reg.notify(room.others(sender), EventMove, move)
	reg.mu.Unlock()

	note.deliver()
}

// RelayChat forwards a chat message, tagged with the sender's display name,
// to every other occupant. Same stale-room rule as RelayMove.
func (reg *Registry) RelayChat(roomID, message string, sender *Client) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		reg.log.Debug("dropping chat for missing room", "room", roomID)
		return
	}
	payload := ChatMessagePayload{Username: sender.Username(), Message: message}
	note := reg.notify(room.others(sender), EventChatMessage, payload)
	reg.mu.Unlock()

	note.deliver()
}

// CloseRoom notifies every occupant, severs their membership, and removes
// the room. Closing a room that does not exist is a no-op.
func (reg *Registry) CloseRoom(roomID string) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return
	}
	note := reg.notify(room.Players, EventCloseRoom, CloseRoomPayload{RoomID: roomID})
	for _, p := range room.Players {
		delete(reg.member, p.ID())
	}
	room.Players = nil
	delete(reg.rooms, roomID)
	reg.mu.Unlock()

	note.deliver()
	reg.log.Info("room closed", "room", roomID)
}

// HandleDisconnect removes p from its room, if any. A room that drops below
// two occupants is deleted immediately; a remaining occupant is told who
// left first. A participant with no room is nothing to do, not an error.
func (reg *Registry) HandleDisconnect(p *Client) {
	reg.mu.Lock()
	roomID, ok := reg.member[p.ID()]
	if !ok {
		reg.mu.Unlock()
		return
	}
	delete(reg.member, p.ID())

	room, ok := reg.rooms[roomID]
	if !ok || !room.contains(p) {
		reg.mu.Unlock()
		return
	}
	room.remove(p)

	var note outbound
	if len(room.Players) > 0 {
		payload := PlayerDisconnectedPayload{ID: p.ID(), Username: p.Username()}
		note = reg.notify(room.Players, EventPlayerDisconnected, payload)
	}
	for _, rem := range room.Players {
		delete(reg.member, rem.ID())
	}
	delete(reg.rooms, roomID)
	reg.mu.Unlock()

	note.deliver()
	reg.log.Info("player left, room removed", "room", roomID, "player", p.ID())
}

// RoomCount reports the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
