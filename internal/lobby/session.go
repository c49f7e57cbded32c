package lobby

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
	"github.com/WangPengPT/ActionGame-sub000/internal/transport"
)

// State is the session's connection-and-lobby phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateInRoom
	StateInGame
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	case StateInGame:
		return "in_game"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by operations that need a live endpoint.
	ErrNotConnected = errors.New("lobby: not connected")
	// ErrNotInRoom is returned by room-scoped operations issued outside a room.
	ErrNotInRoom = errors.New("lobby: not in a room")
)

// Session is the player-side view of the lobby. It owns an endpoint
// produced by the dial function, tracks local room membership from the
// authority's replies and notices, and surfaces everything else
// through optional callback fields.
//
// Session is single-threaded by contract: all methods and all
// callbacks run on the goroutine that calls Poll. The callbacks must
// be assigned before Connect.
type Session struct {
	OnState        func(State)
	OnCreateResult func(ok bool, roomID string, code protocol.RefusalCode, reason string)
	OnJoinResult   func(ok bool, roomID string, code protocol.RefusalCode, reason string)
	OnPlayerJoined func(protocol.PlayerInfo)
	OnPlayerLeft   func(playerID int32, name string)
	OnHostChanged  func(newHostID int32, newHostName string)
	OnPlayerReady  func(playerID int32, ready bool)
	OnKicked       func(reason string)
	OnGameStarted  func(roomID string)
	OnChat         func(senderID int32, text string)
	OnNotice       func(text string)
	OnRoomList     func([]protocol.RoomSummary)
	OnDisconnected func(expected bool)

	dial       func() (transport.Endpoint, error)
	playerName string
	logger     *zap.Logger

	mu         sync.Mutex
	endpoint   transport.Endpoint
	state      State
	roomID     string
	lastRoomID string
	hostID     int32
	players    []protocol.PlayerInfo
	closing    bool
}

// NewSession creates a disconnected session. dial is invoked by
// Connect to produce a started endpoint; it is the seam between the
// session and the two topologies.
func NewSession(dial func() (transport.Endpoint, error), playerName string, logger *zap.Logger) *Session {
	return &Session{
		dial:       dial,
		playerName: playerName,
		logger:     logger,
		state:      StateDisconnected,
	}
}

// Connect dials the authority and binds the session's handlers to the
// endpoint's dispatcher.
//
// Precondition: session must be disconnected.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return errors.New("lobby: already connected")
	}
	s.state = StateConnecting
	s.closing = false
	s.mu.Unlock()
	s.fireState(StateConnecting)

	ep, err := s.dial()
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.fireState(StateDisconnected)
		return err
	}

	s.bind(ep.Events())

	s.mu.Lock()
	s.endpoint = ep
	s.state = StateConnected
	s.mu.Unlock()
	s.fireState(StateConnected)
	return nil
}

func (s *Session) bind(d *transport.Dispatcher) {
	d.Handle(protocol.KindCreateRoomReply, s.onCreateReply)
	d.Handle(protocol.KindJoinRoomReply, s.onJoinReply)
	d.Handle(protocol.KindPlayerJoined, s.onPlayerJoined)
	d.Handle(protocol.KindPlayerLeft, s.onPlayerLeft)
	d.Handle(protocol.KindHostChanged, s.onHostChanged)
	d.Handle(protocol.KindPlayerReady, s.onPlayerReady)
	d.Handle(protocol.KindKicked, s.onKicked)
	d.Handle(protocol.KindGameStarted, s.onGameStarted)
	d.Handle(protocol.KindRoomListReply, s.onRoomList)
	d.Handle(protocol.KindChat, s.onChat)
	d.Handle(protocol.KindSystemNotice, s.onNotice)
	d.OnDisconnected(s.onTransportDown)
}

// Events exposes the underlying endpoint's dispatcher, so gameplay
// handlers can be registered next to the session's own. Returns nil
// while disconnected.
func (s *Session) Events() *transport.Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endpoint == nil {
		return nil
	}
	return s.endpoint.Events()
}

// Poll drains pending endpoint events, running handlers and callbacks
// on the caller's goroutine. Returns the number of events handled.
func (s *Session) Poll() int {
	s.mu.Lock()
	ep := s.endpoint
	s.mu.Unlock()
	if ep == nil {
		return 0
	}
	return ep.Events().Poll()
}

// CreateRoom asks the authority for a new room. maxPlayers of 0 is
// rejected by the authority, not here.
func (s *Session) CreateRoom(name string, maxPlayers uint8, password string) error {
	return s.request(&protocol.CreateRoom{
		RoomName:   name,
		MaxPlayers: maxPlayers,
		Password:   password,
		PlayerName: s.playerName,
	})
}

// JoinRoom asks to join an existing room by its identifier.
func (s *Session) JoinRoom(roomID, password string) error {
	return s.request(&protocol.JoinRoom{
		RoomID:     roomID,
		Password:   password,
		PlayerName: s.playerName,
	})
}

// LeaveRoom departs the current room. Membership is cleared locally
// at once; the authority needs no confirmation round-trip.
func (s *Session) LeaveRoom() error {
	s.mu.Lock()
	if s.state != StateInRoom && s.state != StateInGame {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	s.clearRoomLocked()
	s.state = StateConnected
	ep := s.endpoint
	localID := s.localIDLocked()
	s.mu.Unlock()
	s.fireState(StateConnected)
	return s.sendOn(ep, localID, &protocol.LeaveRoom{})
}

// Kick asks the authority to remove targetID from the room. Only the
// host's request succeeds; a refusal arrives as a system notice.
func (s *Session) Kick(targetID int32) error {
	return s.roomRequest(&protocol.Kick{TargetID: targetID})
}

// SetReady toggles this player's ready flag.
func (s *Session) SetReady(ready bool) error {
	return s.roomRequest(&protocol.SetReady{Ready: ready})
}

// StartGame asks the authority to flip the room in-game.
func (s *Session) StartGame() error {
	return s.roomRequest(&protocol.StartGame{})
}

// RequestRoomList asks for the joinable-room listing.
func (s *Session) RequestRoomList() error {
	return s.request(&protocol.RoomList{})
}

// SendChat sends a chat line to the room.
func (s *Session) SendChat(text string) error {
	return s.roomRequest(&protocol.Chat{Text: text})
}

// Send transmits a room-scoped gameplay message. The authority fans
// it out to the other members.
func (s *Session) Send(m protocol.Message) error {
	if !m.Kind().IsGameplay() {
		return errors.New("lobby: Send accepts gameplay messages only")
	}
	return s.roomRequest(m)
}

// Close tears the session down. The resulting transport drop is
// reported to OnDisconnected as expected.
func (s *Session) Close() {
	s.mu.Lock()
	ep := s.endpoint
	s.endpoint = nil
	s.closing = true
	s.state = StateDisconnected
	s.clearRoomLocked()
	s.mu.Unlock()
	if ep != nil {
		ep.Stop()
	}
	s.fireState(StateDisconnected)
}

// State reports the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LocalID reports the transport-assigned connection id, or -1 while
// disconnected.
func (s *Session) LocalID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localIDLocked()
}

func (s *Session) localIDLocked() int32 {
	if s.endpoint == nil {
		return -1
	}
	return s.endpoint.LocalID()
}

// RoomID reports the current room, empty when not in one.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// LastRoomID reports the most recent room this session occupied. It
// survives a transport drop so a reconnect can rejoin it.
func (s *Session) LastRoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRoomID
}

// Players returns a copy of the known room roster.
func (s *Session) Players() []protocol.PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.PlayerInfo, len(s.players))
	copy(out, s.players)
	return out
}

// IsHost reports whether this session hosts its current room.
func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID != "" && s.endpoint != nil && s.hostID == s.endpoint.LocalID()
}

func (s *Session) request(m protocol.Message) error {
	s.mu.Lock()
	ep := s.endpoint
	localID := s.localIDLocked()
	s.mu.Unlock()
	return s.sendOn(ep, localID, m)
}

func (s *Session) roomRequest(m protocol.Message) error {
	s.mu.Lock()
	if s.roomID == "" {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	ep := s.endpoint
	localID := s.localIDLocked()
	s.mu.Unlock()
	return s.sendOn(ep, localID, m)
}

func (s *Session) sendOn(ep transport.Endpoint, localID int32, m protocol.Message) error {
	if ep == nil {
		return ErrNotConnected
	}
	protocol.Stamp(m, localID)
	return ep.SendTo(transport.AuthorityID, m)
}

func (s *Session) clearRoomLocked() {
	if s.roomID != "" {
		s.lastRoomID = s.roomID
	}
	s.roomID = ""
	s.hostID = -1
	s.players = nil
}

func (s *Session) fireState(st State) {
	if s.OnState != nil {
		s.OnState(st)
	}
}

func (s *Session) onCreateReply(_ int32, msg protocol.Message) {
	reply := msg.(*protocol.CreateRoomReply)
	if reply.Success {
		s.mu.Lock()
		s.roomID = reply.RoomID
		s.lastRoomID = reply.RoomID
		s.hostID = s.localIDLocked()
		s.players = []protocol.PlayerInfo{{ID: s.hostID, Name: s.playerName, Host: true}}
		s.state = StateInRoom
		s.mu.Unlock()
		s.fireState(StateInRoom)
	}
	if s.OnCreateResult != nil {
		s.OnCreateResult(reply.Success, reply.RoomID, reply.Code, reply.Reason)
	}
}

func (s *Session) onJoinReply(_ int32, msg protocol.Message) {
	reply := msg.(*protocol.JoinRoomReply)
	if reply.Success {
		s.mu.Lock()
		s.roomID = reply.RoomID
		s.lastRoomID = reply.RoomID
		s.hostID = reply.HostID
		s.players = reply.Players
		s.state = StateInRoom
		s.mu.Unlock()
		s.fireState(StateInRoom)
	}
	if s.OnJoinResult != nil {
		s.OnJoinResult(reply.Success, reply.RoomID, reply.Code, reply.Reason)
	}
}

func (s *Session) onPlayerJoined(_ int32, msg protocol.Message) {
	note := msg.(*protocol.PlayerJoined)
	s.mu.Lock()
	if s.roomID != "" {
		s.players = append(s.players, note.Player)
	}
	s.mu.Unlock()
	if s.OnPlayerJoined != nil {
		s.OnPlayerJoined(note.Player)
	}
}

func (s *Session) onPlayerLeft(_ int32, msg protocol.Message) {
	note := msg.(*protocol.PlayerLeft)
	s.mu.Lock()
	for i, p := range s.players {
		if p.ID == note.PlayerID {
			s.players = append(s.players[:i], s.players[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if s.OnPlayerLeft != nil {
		s.OnPlayerLeft(note.PlayerID, note.Name)
	}
}

func (s *Session) onHostChanged(_ int32, msg protocol.Message) {
	note := msg.(*protocol.HostChanged)
	s.mu.Lock()
	s.hostID = note.NewHostID
	for i := range s.players {
		s.players[i].Host = s.players[i].ID == note.NewHostID
	}
	s.mu.Unlock()
	if s.OnHostChanged != nil {
		s.OnHostChanged(note.NewHostID, note.NewHostName)
	}
}

func (s *Session) onPlayerReady(_ int32, msg protocol.Message) {
	note := msg.(*protocol.PlayerReady)
	s.mu.Lock()
	for i := range s.players {
		if s.players[i].ID == note.PlayerID {
			s.players[i].Ready = note.Ready
			break
		}
	}
	s.mu.Unlock()
	if s.OnPlayerReady != nil {
		s.OnPlayerReady(note.PlayerID, note.Ready)
	}
}

func (s *Session) onKicked(_ int32, msg protocol.Message) {
	note := msg.(*protocol.Kicked)
	s.mu.Lock()
	s.clearRoomLocked()
	// A kicked player must not auto-rejoin the room that expelled it.
	s.lastRoomID = ""
	s.state = StateConnected
	s.mu.Unlock()
	s.fireState(StateConnected)
	if s.OnKicked != nil {
		s.OnKicked(note.Reason)
	}
}

func (s *Session) onGameStarted(_ int32, msg protocol.Message) {
	note := msg.(*protocol.GameStarted)
	s.mu.Lock()
	s.state = StateInGame
	s.mu.Unlock()
	s.fireState(StateInGame)
	if s.OnGameStarted != nil {
		s.OnGameStarted(note.RoomID)
	}
}

func (s *Session) onRoomList(_ int32, msg protocol.Message) {
	if s.OnRoomList != nil {
		s.OnRoomList(msg.(*protocol.RoomListReply).Rooms)
	}
}

func (s *Session) onChat(_ int32, msg protocol.Message) {
	// Chat is forwarded verbatim, so the header still carries the
	// original sender rather than the authority.
	chat := msg.(*protocol.Chat)
	if s.OnChat != nil {
		s.OnChat(chat.SenderID, chat.Text)
	}
}

func (s *Session) onNotice(_ int32, msg protocol.Message) {
	if s.OnNotice != nil {
		s.OnNotice(msg.(*protocol.SystemNotice).Text)
	}
}

func (s *Session) onTransportDown(connID int32) {
	// On a client endpoint the one link to the authority reports as
	// conn 0. On an embedded host, disconnects of other players carry
	// their ids and are the authority's business, not the session's.
	if connID != transport.AuthorityID {
		return
	}
	s.mu.Lock()
	expected := s.closing
	if !expected {
		s.endpoint = nil
		s.clearRoomLocked()
		s.state = StateDisconnected
	}
	s.mu.Unlock()
	if !expected {
		s.fireState(StateDisconnected)
	}
	if s.OnDisconnected != nil {
		s.OnDisconnected(expected)
	}
}
