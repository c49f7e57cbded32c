package lobby

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/WangPengPT/ActionGame-sub000/internal/config"
	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(config.LobbyConfig{MinPlayersToStart: 2}, 16, zaptest.NewLogger(t))
}

func TestCreateRoom(t *testing.T) {
	g := testRegistry(t)

	state, ref := g.Create(1, "ada", "arena", 4, "")
	require.Nil(t, ref)
	assert.Len(t, state.RoomID, 8)
	assert.Equal(t, int32(1), state.HostID)
	require.Len(t, state.Players, 1)
	assert.Equal(t, protocol.PlayerInfo{ID: 1, Name: "ada", Host: true}, state.Players[0])
	assert.Equal(t, 1, g.RoomCount())
}

func TestCreateRoomWhileInRoom(t *testing.T) {
	g := testRegistry(t)
	_, ref := g.Create(1, "ada", "arena", 4, "")
	require.Nil(t, ref)

	_, ref = g.Create(1, "ada", "second", 4, "")
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalAlreadyInRoom, ref.Code)
	assert.Equal(t, 1, g.RoomCount())
}

func TestCreateRoomInvalidCapacity(t *testing.T) {
	g := testRegistry(t)
	for _, max := range []int{0, -1, 256} {
		_, ref := g.Create(1, "ada", "arena", max, "")
		assert.NotNil(t, ref, "max players %d", max)
	}
}

func TestCreateRoomLimit(t *testing.T) {
	g := NewRegistry(config.LobbyConfig{MinPlayersToStart: 2}, 2, zaptest.NewLogger(t))
	for i := int32(1); i <= 2; i++ {
		_, ref := g.Create(i, fmt.Sprintf("p%d", i), "room", 4, "")
		require.Nil(t, ref)
	}
	_, ref := g.Create(3, "p3", "room", 4, "")
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalRoomFull, ref.Code)
}

func TestJoinPreservesOrder(t *testing.T) {
	g := testRegistry(t)
	created, _ := g.Create(1, "ada", "arena", 4, "")

	for i, name := range []string{"bob", "cleo"} {
		state, ref := g.Join(int32(i+2), name, created.RoomID, "")
		require.Nil(t, ref)
		assert.Equal(t, int32(1), state.HostID)
	}

	_, members, ok := g.MembersOf(1)
	require.True(t, ok)
	assert.Equal(t, []int32{1, 2, 3}, members, "members stay in join order")
}

func TestJoinRefusals(t *testing.T) {
	g := testRegistry(t)
	created, _ := g.Create(1, "ada", "arena", 2, "hunter2")

	_, ref := g.Join(2, "bob", "nope1234", "")
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalRoomNotFound, ref.Code)

	_, ref = g.Join(2, "bob", created.RoomID, "wrong")
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalBadPassword, ref.Code)

	_, joinRef := g.Join(2, "bob", created.RoomID, "hunter2")
	require.Nil(t, joinRef)

	_, ref = g.Join(3, "cleo", created.RoomID, "hunter2")
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalRoomFull, ref.Code)

	_, ref = g.Join(2, "bob", created.RoomID, "hunter2")
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalAlreadyInRoom, ref.Code)
}

func TestJoinAfterStartRefused(t *testing.T) {
	g := testRegistry(t)
	created, _ := g.Create(1, "ada", "arena", 4, "")
	_, ref := g.Join(2, "bob", created.RoomID, "")
	require.Nil(t, ref)

	_, startRef := g.Start(1)
	require.Nil(t, startRef)

	_, ref = g.Join(3, "cleo", created.RoomID, "")
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalRoomInGame, ref.Code)
}

func TestFullRoomRefusalLeavesStateUntouched(t *testing.T) {
	g := testRegistry(t)
	created, _ := g.Create(1, "ada", "arena", 2, "")
	_, ref := g.Join(2, "bob", created.RoomID, "")
	require.Nil(t, ref)

	_, ref = g.Join(3, "cleo", created.RoomID, "")
	require.NotNil(t, ref)

	_, members, ok := g.MembersOf(1)
	require.True(t, ok)
	assert.Equal(t, []int32{1, 2}, members)
	_, _, in := g.MembersOf(3)
	assert.False(t, in, "refused joiner must not be tracked")
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	g := testRegistry(t)
	g.Create(1, "ada", "arena", 4, "")

	dep, ok := g.Leave(1)
	require.True(t, ok)
	assert.True(t, dep.RoomDeleted)
	assert.Equal(t, 0, g.RoomCount())
	assert.Empty(t, g.List())
}

func TestLeaveMigratesHostToEarliestJoiner(t *testing.T) {
	g := testRegistry(t)
	created, _ := g.Create(1, "ada", "arena", 4, "")
	g.Join(2, "bob", created.RoomID, "")
	g.Join(3, "cleo", created.RoomID, "")

	dep, ok := g.Leave(1)
	require.True(t, ok)
	require.NotNil(t, dep.NewHost, "host departure must promote someone")
	assert.Equal(t, int32(2), dep.NewHost.ID, "earliest surviving joiner becomes host")
	assert.True(t, dep.NewHost.Host)
	assert.Equal(t, []int32{2, 3}, dep.Remaining)
}

func TestLeaveNonHostKeepsHost(t *testing.T) {
	g := testRegistry(t)
	created, _ := g.Create(1, "ada", "arena", 4, "")
	g.Join(2, "bob", created.RoomID, "")

	dep, ok := g.Leave(2)
	require.True(t, ok)
	assert.Nil(t, dep.NewHost)
	assert.Equal(t, []int32{1}, dep.Remaining)
}

func TestLeaveWhileNotInRoom(t *testing.T) {
	g := testRegistry(t)
	_, ok := g.Leave(9)
	assert.False(t, ok)
}

func TestKick(t *testing.T) {
	g := testRegistry(t)
	created, _ := g.Create(1, "ada", "arena", 4, "")
	g.Join(2, "bob", created.RoomID, "")

	dep, ref := g.Kick(1, 2)
	require.Nil(t, ref)
	assert.True(t, dep.Kicked)
	assert.Equal(t, int32(2), dep.PlayerID)

	// The kicked player can immediately join again.
	_, joinRef := g.Join(2, "bob", created.RoomID, "")
	assert.Nil(t, joinRef)
}

func TestKickRefusals(t *testing.T) {
	g := testRegistry(t)
	created, _ := g.Create(1, "ada", "arena", 4, "")
	g.Join(2, "bob", created.RoomID, "")

	_, ref := g.Kick(2, 1)
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalNotHost, ref.Code)

	_, ref = g.Kick(1, 1)
	require.NotNil(t, ref)

	_, ref = g.Kick(1, 42)
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalNotInRoom, ref.Code)

	_, ref = g.Kick(9, 2)
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalNotInRoom, ref.Code)
}

func TestStartPolicy(t *testing.T) {
	g := testRegistry(t)
	created, _ := g.Create(1, "ada", "arena", 4, "")

	_, ref := g.Start(1)
	require.NotNil(t, ref, "cannot start alone under a two-player minimum")
	assert.Equal(t, protocol.RefusalNotEnoughPlayers, ref.Code)

	g.Join(2, "bob", created.RoomID, "")

	_, ref = g.Start(2)
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalNotHost, ref.Code)

	si, ref := g.Start(1)
	require.Nil(t, ref)
	assert.Equal(t, created.RoomID, si.RoomID)
	assert.Equal(t, []int32{1, 2}, si.Members)

	_, ref = g.Start(1)
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalRoomInGame, ref.Code)
}

func TestStartRequiresReadyWhenPolicyOn(t *testing.T) {
	g := NewRegistry(config.LobbyConfig{MinPlayersToStart: 2, RequireReady: true}, 16, zaptest.NewLogger(t))
	created, _ := g.Create(1, "ada", "arena", 4, "")
	g.Join(2, "bob", created.RoomID, "")

	_, ref := g.Start(1)
	require.NotNil(t, ref)
	assert.Equal(t, protocol.RefusalNotReady, ref.Code)

	rc, readyRef := g.SetReady(2, true)
	require.Nil(t, readyRef)
	assert.True(t, rc.Ready)
	assert.Equal(t, []int32{1, 2}, rc.Members)

	_, ref = g.Start(1)
	assert.Nil(t, ref, "the host's own ready flag is not required")
}

func TestListExcludesInGameRooms(t *testing.T) {
	g := testRegistry(t)
	first, _ := g.Create(1, "ada", "arena", 4, "secret")
	g.Join(2, "bob", first.RoomID, "secret")
	second, _ := g.Create(3, "cleo", "duel", 2, "")

	rooms := g.List()
	require.Len(t, rooms, 2)
	for _, r := range rooms {
		switch r.ID {
		case first.RoomID:
			assert.Equal(t, "arena", r.Name)
			assert.Equal(t, 2, r.Players)
			assert.Equal(t, 4, r.MaxPlayers)
			assert.True(t, r.HasPassword)
			assert.Equal(t, "ada", r.HostName)
		case second.RoomID:
			assert.False(t, r.HasPassword)
		default:
			t.Fatalf("unexpected room %s", r.ID)
		}
	}

	_, ref := g.Start(1)
	require.Nil(t, ref)
	rooms = g.List()
	require.Len(t, rooms, 1)
	assert.Equal(t, second.RoomID, rooms[0].ID)
}

// TestRegistryMembershipInvariant drives the registry with a random
// operation sequence and checks that every tracked player is in
// exactly the room the index says, and that no room ever exceeds its
// capacity.
func TestRegistryMembershipInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := NewRegistry(config.LobbyConfig{MinPlayersToStart: 1}, 8, zap.NewNop())
		conns := []int32{1, 2, 3, 4, 5}
		inRoom := map[int32]string{}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			conn := conns[rapid.IntRange(0, len(conns)-1).Draw(t, "conn")]
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				state, ref := g.Create(conn, fmt.Sprintf("p%d", conn), "room", 2, "")
				if ref == nil {
					inRoom[conn] = state.RoomID
				}
			case 1:
				rooms := g.List()
				if len(rooms) > 0 {
					target := rooms[rapid.IntRange(0, len(rooms)-1).Draw(t, "room")]
					state, ref := g.Join(conn, fmt.Sprintf("p%d", conn), target.ID, "")
					if ref == nil {
						inRoom[conn] = state.RoomID
					}
				}
			case 2:
				if _, ok := g.Leave(conn); ok {
					delete(inRoom, conn)
				}
			}

			for conn, want := range inRoom {
				roomID, members, ok := g.MembersOf(conn)
				if !ok {
					t.Fatalf("conn %d should be in room %s but is tracked nowhere", conn, want)
				}
				if roomID != want {
					t.Fatalf("conn %d in room %s, want %s", conn, roomID, want)
				}
				if len(members) > 2 {
					t.Fatalf("room %s over capacity: %d members", roomID, len(members))
				}
			}
		}
	})
}
