package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestParticipant builds a detached client good enough for registry
// tests: an id, a name, and a buffered send channel to capture deliveries.
func newTestParticipant(name string) *Client {
	return &Client{
		send:     make(chan []byte, 16),
		id:       uuid.NewString(),
		username: name,
	}
}

func receiveEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case payload := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		return env
	default:
		t.Fatal("expected a queued event")
		return Envelope{}
	}
}

func requireNoEvents(t *testing.T, c *Client) {
	t.Helper()
	require.Empty(t, c.send, "expected no queued events")
}

func TestCreateRoomUniqueIDsAndSoleOccupant(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p := newTestParticipant(fmt.Sprintf("player-%d", i))
		id := reg.CreateRoom(p)

		req.False(seen[id], "room id repeated")
		seen[id] = true

		room := reg.rooms[id]
		req.Len(room.Players, 1)
		req.Same(p, room.Players[0])
	}
	req.Equal(50, reg.RoomCount())
}

func TestJoinRoomNotFound(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	// other rooms existing must not matter
	reg.CreateRoom(newTestParticipant("alice"))

	_, err := reg.JoinRoom("no-such-room", newTestParticipant("bob"))
	req.ErrorIs(err, ErrRoomNotFound)
}

func TestJoinRoomFull(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	creator := newTestParticipant("alice")
	roomID := reg.CreateRoom(creator)

	_, err := reg.JoinRoom(roomID, newTestParticipant("bob"))
	req.NoError(err)

	_, err = reg.JoinRoom(roomID, newTestParticipant("carol"))
	req.ErrorIs(err, ErrRoomFull)
	req.Len(reg.rooms[roomID].Players, 2)
}

func TestJoinRoomRejectsExistingOccupant(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	creator := newTestParticipant("alice")
	roomID := reg.CreateRoom(creator)

	// joining your own room must not seat you twice
	_, err := reg.JoinRoom(roomID, creator)
	req.ErrorIs(err, ErrAlreadyInRoom)
	req.Len(reg.rooms[roomID].Players, 1)
	requireNoEvents(t, creator)

	// the seat is still open for a real opponent
	joiner := newTestParticipant("bob")
	snap, err := reg.JoinRoom(roomID, joiner)
	req.NoError(err)
	req.Len(snap.Players, 2)

	// and a seated occupant still cannot double up
	receiveEnvelope(t, creator) // opponentJoined
	_, err = reg.JoinRoom(roomID, joiner)
	req.ErrorIs(err, ErrAlreadyInRoom)
	req.Len(reg.rooms[roomID].Players, 2)
	requireNoEvents(t, creator)
	requireNoEvents(t, joiner)
}

func TestJoinRoomEmptyConsistencyCheck(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	// Manufacture the state the eager-deletion invariant should make
	// unreachable.
	reg.rooms["orphan"] = &Room{ID: "orphan"}

	_, err := reg.JoinRoom("orphan", newTestParticipant("bob"))
	req.ErrorIs(err, ErrRoomEmpty)
}

func TestJoinNotifiesOnlyExistingOccupant(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	creator := newTestParticipant("alice")
	joiner := newTestParticipant("bob")
	roomID := reg.CreateRoom(creator)

	snap, err := reg.JoinRoom(roomID, joiner)
	req.NoError(err)
	req.Equal(roomID, snap.RoomID)
	req.Equal([]PlayerInfo{
		{ID: creator.id, Username: "alice"},
		{ID: joiner.id, Username: "bob"},
	}, snap.Players)

	env := receiveEnvelope(t, creator)
	req.Equal(EventOpponentJoined, env.Event)

	var got RoomSnapshot
	req.NoError(json.Unmarshal(env.Data, &got))
	req.Equal(snap, got)

	requireNoEvents(t, creator)
	requireNoEvents(t, joiner)
}

func TestRelayMoveReachesOnlyTheOtherOccupant(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	p1 := newTestParticipant("alice")
	p2 := newTestParticipant("bob")
	roomID := reg.CreateRoom(p1)
	_, err := reg.JoinRoom(roomID, p2)
	req.NoError(err)
	receiveEnvelope(t, p1) // opponentJoined

	bystander := newTestParticipant("mallory")
	reg.CreateRoom(bystander)

	move := json.RawMessage(`{"from":"e2","to":"e4"}`)
	reg.RelayMove(roomID, move, p1)

	env := receiveEnvelope(t, p2)
	req.Equal(EventMove, env.Event)
	req.JSONEq(string(move), string(env.Data))

	requireNoEvents(t, p1)
	requireNoEvents(t, bystander)
}

func TestRelayMoveOrderingPerSender(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	p1 := newTestParticipant("alice")
	p2 := newTestParticipant("bob")
	roomID := reg.CreateRoom(p1)
	_, err := reg.JoinRoom(roomID, p2)
	req.NoError(err)
	receiveEnvelope(t, p1)

	for i := 0; i < 5; i++ {
		reg.RelayMove(roomID, json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)), p1)
	}
	for i := 0; i < 5; i++ {
		env := receiveEnvelope(t, p2)
		req.JSONEq(fmt.Sprintf(`{"seq":%d}`, i), string(env.Data))
	}
}

func TestRelayToMissingRoomIsNoOp(t *testing.T) {
	reg := NewRegistry(nil)
	sender := newTestParticipant("alice")

	reg.RelayMove("gone", json.RawMessage(`{"from":"e2","to":"e4"}`), sender)
	reg.RelayChat("gone", "hello?", sender)

	requireNoEvents(t, sender)
}

func TestRelayChatCarriesSenderName(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	p1 := newTestParticipant("alice")
	p2 := newTestParticipant("bob")
	roomID := reg.CreateRoom(p1)
	_, err := reg.JoinRoom(roomID, p2)
	req.NoError(err)
	receiveEnvelope(t, p1)

	reg.RelayChat(roomID, "good luck", p2)

	env := receiveEnvelope(t, p1)
	req.Equal(EventChatMessage, env.Event)

	var msg ChatMessagePayload
	req.NoError(json.Unmarshal(env.Data, &msg))
	req.Equal(ChatMessagePayload{Username: "bob", Message: "good luck"}, msg)

	requireNoEvents(t, p2)
}

func TestCloseRoomNotifiesAllAndIsIdempotent(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	p1 := newTestParticipant("alice")
	p2 := newTestParticipant("bob")
	roomID := reg.CreateRoom(p1)
	_, err := reg.JoinRoom(roomID, p2)
	req.NoError(err)
	receiveEnvelope(t, p1)

	reg.CloseRoom(roomID)

	for _, p := range []*Client{p1, p2} {
		env := receiveEnvelope(t, p)
		req.Equal(EventCloseRoom, env.Event)

		var payload CloseRoomPayload
		req.NoError(json.Unmarshal(env.Data, &payload))
		req.Equal(roomID, payload.RoomID)
	}

	req.Zero(reg.RoomCount())
	req.Empty(reg.member)

	reg.CloseRoom(roomID) // already gone
	requireNoEvents(t, p1)
	requireNoEvents(t, p2)
}

func TestDisconnectSoleOccupantRemovesRoom(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	p1 := newTestParticipant("alice")
	roomID := reg.CreateRoom(p1)

	reg.HandleDisconnect(p1)

	req.Zero(reg.RoomCount())
	_, err := reg.JoinRoom(roomID, newTestParticipant("bob"))
	req.ErrorIs(err, ErrRoomNotFound)
}

func TestDisconnectNotifiesSurvivorAndRemovesRoom(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	p1 := newTestParticipant("alice")
	p2 := newTestParticipant("bob")
	roomID := reg.CreateRoom(p1)
	_, err := reg.JoinRoom(roomID, p2)
	req.NoError(err)
	receiveEnvelope(t, p1)

	reg.HandleDisconnect(p2)

	env := receiveEnvelope(t, p1)
	req.Equal(EventPlayerDisconnected, env.Event)

	var payload PlayerDisconnectedPayload
	req.NoError(json.Unmarshal(env.Data, &payload))
	req.Equal(PlayerDisconnectedPayload{ID: p2.id, Username: "bob"}, payload)

	req.Zero(reg.RoomCount())
	req.Empty(reg.member)

	_, err = reg.JoinRoom(roomID, newTestParticipant("carol"))
	req.ErrorIs(err, ErrRoomNotFound)
}

func TestDisconnectUnknownParticipantIsNoOp(t *testing.T) {
	reg := NewRegistry(nil)
	reg.CreateRoom(newTestParticipant("alice"))

	reg.HandleDisconnect(newTestParticipant("stranger"))

	require.Equal(t, 1, reg.RoomCount())
}

func TestConcurrentJoinsAdmitExactlyOne(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(nil)

	creator := newTestParticipant("alice")
	roomID := reg.CreateRoom(creator)

	const contenders = 10
	var wg sync.WaitGroup
	errs := make(chan error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := reg.JoinRoom(roomID, newTestParticipant(fmt.Sprintf("contender-%d", n)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var admitted, rejected int
	for err := range errs {
		switch {
		case err == nil:
			admitted++
		default:
			req.ErrorIs(err, ErrRoomFull)
			rejected++
		}
	}

	req.Equal(1, admitted)
	req.Equal(contenders-1, rejected)
	req.Len(reg.rooms[roomID].Players, 2)
}
