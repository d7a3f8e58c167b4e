// Package server models a game room: an ordered pair of participants
// identified by an unguessable generated token.
package server

import "github.com/samber/lo"

// roomCapacity is the hard occupancy limit; these are 1v1 sessions.
const roomCapacity = 2

// Room groups at most two live participants. Players keeps join order:
// Players[0] opened the room and plays the starting side.
type Room struct {
	ID      string
	Players []*Client
}

func newRoom(id string, creator *Client) *Room {
	return &Room{ID: id, Players: []*Client{creator}}
}

// PlayerInfo is the wire representation of one occupant.
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RoomSnapshot is the room state sent in roomJoined and opponentJoined
// events.
type RoomSnapshot struct {
	RoomID  string       `json:"roomId"`
	Players []PlayerInfo `json:"players"`
}

func (r *Room) snapshot() RoomSnapshot {
	return RoomSnapshot{
		RoomID: r.ID,
		Players: lo.Map(r.Players, func(p *Client, _ int) PlayerInfo {
			return PlayerInfo{ID: p.ID(), Username: p.Username()}
		}),
	}
}

// others returns every occupant except p.
func (r *Room) others(p *Client) []*Client {
	return lo.Filter(r.Players, func(c *Client, _ int) bool { return c != p })
}

func (r *Room) contains(p *Client) bool {
	return lo.Contains(r.Players, p)
}

func (r *Room) remove(p *Client) {
	r.Players = r.others(p)
}
