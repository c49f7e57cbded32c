package lobby

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/WangPengPT/ActionGame-sub000/internal/config"
	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
)

// roomIDLength is the length of the opaque room id exposed to
// gameplay code: the first block of a UUID.
const roomIDLength = 8

// RoomState is the full room snapshot handed back after a successful
// create or join, and relayed to the new member.
type RoomState struct {
	RoomID  string
	HostID  int32
	Players []protocol.PlayerInfo
}

// Departure describes one player removed from a room, voluntarily,
// by kick, or by disconnect. It carries everything the authority
// needs to notify survivors without holding the registry lock.
type Departure struct {
	RoomID      string
	PlayerID    int32
	PlayerName  string
	Kicked      bool
	NewHost     *protocol.PlayerInfo
	RoomDeleted bool
	Remaining   []int32
}

// ReadyChange describes one member's ready-flag toggle.
type ReadyChange struct {
	RoomID   string
	PlayerID int32
	Ready    bool
	Members  []int32
}

// StartInfo describes a room flipping in-game.
type StartInfo struct {
	RoomID  string
	Members []int32
}

// Registry is the authoritative room table, shared by both
// topologies: the embedded host owns one, and so does the relay
// process. All mutations go through one coarse mutex; callers receive
// copied result values and never alias registry state.
type Registry struct {
	policy   config.LobbyConfig
	maxRooms int
	logger   *zap.Logger

	mu     sync.Mutex
	rooms  map[string]*Room
	byConn map[int32]*Room
}

// NewRegistry creates an empty registry.
//
// Precondition: logger must be non-nil; maxRooms must be >= 1.
func NewRegistry(policy config.LobbyConfig, maxRooms int, logger *zap.Logger) *Registry {
	return &Registry{
		policy:   policy,
		maxRooms: maxRooms,
		logger:   logger,
		rooms:    make(map[string]*Room),
		byConn:   make(map[int32]*Room),
	}
}

// Create allocates a new room with the requester as Player #0 and
// host. The password, when non-empty, is stored only as a bcrypt
// hash.
//
// Postcondition: On success returns the room state with the creator
// as sole member; on refusal no state changed.
func (g *Registry) Create(connID int32, playerName, roomName string, maxPlayers int, password string) (*RoomState, *Refusal) {
	if maxPlayers < 1 || maxPlayers > 255 {
		return nil, refuse(protocol.RefusalNone, fmt.Sprintf("max players must be 1-255, got %d", maxPlayers))
	}

	var hash []byte
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, refuse(protocol.RefusalNone, "password could not be processed")
		}
		hash = h
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, in := g.byConn[connID]; in {
		return nil, refuse(protocol.RefusalAlreadyInRoom, "already in a room, leave it first")
	}
	if len(g.rooms) >= g.maxRooms {
		return nil, refuse(protocol.RefusalRoomFull, "room limit reached")
	}

	room := &Room{
		ID:           g.newRoomID(),
		Name:         roomName,
		MaxPlayers:   maxPlayers,
		HostID:       connID,
		passwordHash: hash,
		players:      []*Player{{ConnID: connID, Name: playerName, Host: true}},
	}
	g.rooms[room.ID] = room
	g.byConn[connID] = room

	g.logger.Info("room created",
		zap.String("room_id", room.ID),
		zap.String("room_name", roomName),
		zap.Int32("host_id", connID),
		zap.Int("max_players", maxPlayers),
		zap.Bool("has_password", room.HasPassword()),
	)
	return &RoomState{RoomID: room.ID, HostID: connID, Players: room.snapshot()}, nil
}

// Join appends the requester to the room, preserving join order.
// Refusals carry distinct codes: room not found, room full, room
// already in-game, password mismatch, requester already in a room.
//
// Postcondition: On refusal, nothing changed; there is no partial join.
func (g *Registry) Join(connID int32, playerName, roomID, password string) (*RoomState, *Refusal) {
	g.mu.Lock()
	if _, in := g.byConn[connID]; in {
		g.mu.Unlock()
		return nil, refuse(protocol.RefusalAlreadyInRoom, "already in a room, leave it first")
	}
	room, ok := g.rooms[roomID]
	if !ok {
		g.mu.Unlock()
		return nil, refuse(protocol.RefusalRoomNotFound, fmt.Sprintf("room %s not found", roomID))
	}
	if room.InGame {
		g.mu.Unlock()
		return nil, refuse(protocol.RefusalRoomInGame, "game already started")
	}
	if len(room.players) >= room.MaxPlayers {
		g.mu.Unlock()
		return nil, refuse(protocol.RefusalRoomFull, "room is full")
	}
	hash := room.passwordHash
	g.mu.Unlock()

	// bcrypt comparison happens outside the registry lock; a slow
	// hash must not stall unrelated rooms.
	if len(hash) > 0 {
		if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
			return nil, refuse(protocol.RefusalBadPassword, "wrong password")
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Re-validate: the room may have filled, started, or died while
	// the hash was being compared.
	room, ok = g.rooms[roomID]
	if !ok {
		return nil, refuse(protocol.RefusalRoomNotFound, fmt.Sprintf("room %s not found", roomID))
	}
	if room.InGame {
		return nil, refuse(protocol.RefusalRoomInGame, "game already started")
	}
	if len(room.players) >= room.MaxPlayers {
		return nil, refuse(protocol.RefusalRoomFull, "room is full")
	}
	if _, in := g.byConn[connID]; in {
		return nil, refuse(protocol.RefusalAlreadyInRoom, "already in a room, leave it first")
	}

	room.players = append(room.players, &Player{ConnID: connID, Name: playerName})
	g.byConn[connID] = room

	g.logger.Info("player joined room",
		zap.String("room_id", room.ID),
		zap.Int32("conn_id", connID),
		zap.String("player_name", playerName),
		zap.Int("players", len(room.players)),
	)
	return &RoomState{RoomID: room.ID, HostID: room.HostID, Players: room.snapshot()}, nil
}

// Leave removes the requester from its room. If the departing player
// was host and players remain, the next player in join order is
// promoted. An emptied room is deleted immediately.
//
// Postcondition: Returns the departure details, or false if the
// requester was not in any room.
func (g *Registry) Leave(connID int32) (*Departure, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeLocked(connID, false)
}

// Kick forcibly removes the target from the requester's room.
// Host-only.
func (g *Registry) Kick(connID, targetID int32) (*Departure, *Refusal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, in := g.byConn[connID]
	if !in {
		return nil, refuse(protocol.RefusalNotInRoom, "not in a room")
	}
	if room.HostID != connID {
		return nil, refuse(protocol.RefusalNotHost, "only the host can kick")
	}
	if connID == targetID {
		return nil, refuse(protocol.RefusalNotInRoom, "cannot kick yourself, leave instead")
	}
	if room.playerIndex(targetID) < 0 {
		return nil, refuse(protocol.RefusalNotInRoom, fmt.Sprintf("player %d is not in the room", targetID))
	}

	dep, _ := g.removeLocked(targetID, true)
	return dep, nil
}

// removeLocked removes a player and handles host migration and empty-
// room deletion. Caller holds g.mu.
func (g *Registry) removeLocked(connID int32, kicked bool) (*Departure, bool) {
	room, in := g.byConn[connID]
	if !in {
		return nil, false
	}
	idx := room.playerIndex(connID)
	if idx < 0 {
		delete(g.byConn, connID)
		return nil, false
	}

	departing := room.players[idx]
	room.players = append(room.players[:idx], room.players[idx+1:]...)
	delete(g.byConn, connID)

	dep := &Departure{
		RoomID:     room.ID,
		PlayerID:   connID,
		PlayerName: departing.Name,
		Kicked:     kicked,
	}

	if len(room.players) == 0 {
		delete(g.rooms, room.ID)
		dep.RoomDeleted = true
		g.logger.Info("room deleted, last player left",
			zap.String("room_id", room.ID),
		)
		return dep, true
	}

	if departing.Host {
		// Host migration: the lowest-index survivor joined earliest.
		next := room.players[0]
		next.Host = true
		room.HostID = next.ConnID
		dep.NewHost = &protocol.PlayerInfo{ID: next.ConnID, Name: next.Name, Host: true, Ready: next.Ready}
		g.logger.Info("host migrated",
			zap.String("room_id", room.ID),
			zap.Int32("old_host", connID),
			zap.Int32("new_host", next.ConnID),
		)
	}

	dep.Remaining = room.memberIDs(-1)
	return dep, true
}

// SetReady toggles the requester's ready flag.
func (g *Registry) SetReady(connID int32, ready bool) (*ReadyChange, *Refusal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, in := g.byConn[connID]
	if !in {
		return nil, refuse(protocol.RefusalNotInRoom, "not in a room")
	}
	p := room.player(connID)
	p.Ready = ready

	return &ReadyChange{
		RoomID:   room.ID,
		PlayerID: connID,
		Ready:    ready,
		Members:  room.memberIDs(-1),
	}, nil
}

// Start flips the requester's room in-game. Host-only, refused while
// already in-game, under the minimum player count, or (when the
// ready policy is on) while any non-host member is not ready.
//
// Postcondition: On success the room no longer appears in List and
// rejects joins.
func (g *Registry) Start(connID int32) (*StartInfo, *Refusal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, in := g.byConn[connID]
	if !in {
		return nil, refuse(protocol.RefusalNotInRoom, "not in a room")
	}
	if room.HostID != connID {
		return nil, refuse(protocol.RefusalNotHost, "only the host can start the game")
	}
	if room.InGame {
		return nil, refuse(protocol.RefusalRoomInGame, "game already started")
	}
	if len(room.players) < g.policy.MinPlayersToStart {
		return nil, refuse(protocol.RefusalNotEnoughPlayers,
			fmt.Sprintf("need at least %d players, have %d", g.policy.MinPlayersToStart, len(room.players)))
	}
	if g.policy.RequireReady {
		for _, p := range room.players {
			if !p.Host && !p.Ready {
				return nil, refuse(protocol.RefusalNotReady, fmt.Sprintf("%s is not ready", p.Name))
			}
		}
	}

	room.InGame = true
	g.logger.Info("game started",
		zap.String("room_id", room.ID),
		zap.Int("players", len(room.players)),
	)
	return &StartInfo{RoomID: room.ID, Members: room.memberIDs(-1)}, nil
}

// List returns the joinable rooms: in-game rooms are excluded. The
// result is sorted by room id for a stable listing.
func (g *Registry) List() []protocol.RoomSummary {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]protocol.RoomSummary, 0, len(g.rooms))
	for _, room := range g.rooms {
		if room.InGame {
			continue
		}
		out = append(out, room.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MembersOf returns the requester's room id and the member ids in
// join order, or false when the requester is not in a room.
func (g *Registry) MembersOf(connID int32) (string, []int32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, in := g.byConn[connID]
	if !in {
		return "", nil, false
	}
	return room.ID, room.memberIDs(-1), true
}

// RoomCount returns the number of open rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// newRoomID generates an opaque short room id, retrying on the
// unlikely collision. Caller holds g.mu.
func (g *Registry) newRoomID() string {
	for {
		id := uuid.NewString()[:roomIDLength]
		if _, taken := g.rooms[id]; !taken {
			return id
		}
	}
}
