package protocol

import "time"

// Header carries the fields every message shares: the sender's
// connection id and a unix-millisecond timestamp set by the sender.
type Header struct {
	SenderID  int32
	Timestamp int64
}

func (h *Header) header() *Header { return h }

// Now returns the current time as a wire timestamp.
func Now() int64 { return time.Now().UnixMilli() }

// Stamp fills the message header with the sender id and the current
// timestamp. Every outbound message is stamped exactly once, by the
// party that transmits it.
func Stamp(m Message, senderID int32) {
	h := m.header()
	h.SenderID = senderID
	h.Timestamp = Now()
}

// Message is one decoded wire message. Instances are never shared
// across the wire: encode and decode always copy, and a decoded
// message is a fresh instance owned by the receiver.
type Message interface {
	Kind() Kind
	header() *Header
	appendFields(w *fieldWriter)
	readFields(r *fieldReader)
}

// PlayerInfo describes one room member inside room-scoped messages.
type PlayerInfo struct {
	ID    int32
	Name  string
	Host  bool
	Ready bool
}

// RoomSummary is one row of a room-list reply.
type RoomSummary struct {
	ID          string
	Name        string
	Players     int
	MaxPlayers  int
	HasPassword bool
	HostName    string
}

// --- connection lifecycle ---

// Welcome tells a freshly accepted peer which connection id the
// accepting side assigned to it.
type Welcome struct {
	Header
	AssignedID int32
}

func (*Welcome) Kind() Kind                   { return KindWelcome }
func (m *Welcome) appendFields(w *fieldWriter) { w.i32(m.AssignedID) }
func (m *Welcome) readFields(r *fieldReader)   { m.AssignedID = r.i32() }

// Ping is a liveness probe.
type Ping struct {
	Header
}

func (*Ping) Kind() Kind                 { return KindPing }
func (*Ping) appendFields(*fieldWriter)  {}
func (*Ping) readFields(*fieldReader)    {}

// Pong answers a Ping.
type Pong struct {
	Header
}

func (*Pong) Kind() Kind                { return KindPong }
func (*Pong) appendFields(*fieldWriter) {}
func (*Pong) readFields(*fieldReader)   {}

// Disconnect announces a deliberate close.
type Disconnect struct {
	Header
	Reason string
}

func (*Disconnect) Kind() Kind                    { return KindDisconnect }
func (m *Disconnect) appendFields(w *fieldWriter) { w.str(m.Reason) }
func (m *Disconnect) readFields(r *fieldReader)   { m.Reason = r.str() }

// --- room lifecycle ---

// CreateRoom asks the authority to allocate a new room with the
// requester as its host.
type CreateRoom struct {
	Header
	RoomName   string
	MaxPlayers uint8
	Password   string
	PlayerName string
}

func (*CreateRoom) Kind() Kind { return KindCreateRoom }
func (m *CreateRoom) appendFields(w *fieldWriter) {
	w.str(m.RoomName)
	w.u8(m.MaxPlayers)
	w.str(m.Password)
	w.str(m.PlayerName)
}
func (m *CreateRoom) readFields(r *fieldReader) {
	m.RoomName = r.str()
	m.MaxPlayers = r.u8()
	m.Password = r.str()
	m.PlayerName = r.str()
}

// CreateRoomReply reports the outcome of a CreateRoom request. On
// success RoomID carries the generated room id.
type CreateRoomReply struct {
	Header
	Success bool
	Code    RefusalCode
	Reason  string
	RoomID  string
}

func (*CreateRoomReply) Kind() Kind { return KindCreateRoomReply }
func (m *CreateRoomReply) appendFields(w *fieldWriter) {
	w.bool(m.Success)
	w.u8(uint8(m.Code))
	w.str(m.Reason)
	w.str(m.RoomID)
}
func (m *CreateRoomReply) readFields(r *fieldReader) {
	m.Success = r.bool()
	m.Code = RefusalCode(r.u8())
	m.Reason = r.str()
	m.RoomID = r.str()
}

// JoinRoom asks the authority to append the requester to a room.
type JoinRoom struct {
	Header
	RoomID     string
	Password   string
	PlayerName string
}

func (*JoinRoom) Kind() Kind { return KindJoinRoom }
func (m *JoinRoom) appendFields(w *fieldWriter) {
	w.str(m.RoomID)
	w.str(m.Password)
	w.str(m.PlayerName)
}
func (m *JoinRoom) readFields(r *fieldReader) {
	m.RoomID = r.str()
	m.Password = r.str()
	m.PlayerName = r.str()
}

// JoinRoomReply reports the outcome of a JoinRoom request. On success
// it carries the full current room snapshot, not a diff: Players is
// the complete member list in join order and HostID the current host.
type JoinRoomReply struct {
	Header
	Success bool
	Code    RefusalCode
	Reason  string
	RoomID  string
	HostID  int32
	Players []PlayerInfo
}

func (*JoinRoomReply) Kind() Kind { return KindJoinRoomReply }
func (m *JoinRoomReply) appendFields(w *fieldWriter) {
	w.bool(m.Success)
	w.u8(uint8(m.Code))
	w.str(m.Reason)
	w.str(m.RoomID)
	w.i32(m.HostID)
	w.u16(uint16(len(m.Players)))
	for _, p := range m.Players {
		w.player(p)
	}
}
func (m *JoinRoomReply) readFields(r *fieldReader) {
	m.Success = r.bool()
	m.Code = RefusalCode(r.u8())
	m.Reason = r.str()
	m.RoomID = r.str()
	m.HostID = r.i32()
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		m.Players = append(m.Players, r.player())
	}
}

// LeaveRoom asks the authority to remove the requester from its room.
type LeaveRoom struct {
	Header
}

func (*LeaveRoom) Kind() Kind                { return KindLeaveRoom }
func (*LeaveRoom) appendFields(*fieldWriter) {}
func (*LeaveRoom) readFields(*fieldReader)   {}

// PlayerJoined notifies existing members that a new player was
// appended to the room.
type PlayerJoined struct {
	Header
	Player PlayerInfo
}

func (*PlayerJoined) Kind() Kind                    { return KindPlayerJoined }
func (m *PlayerJoined) appendFields(w *fieldWriter) { w.player(m.Player) }
func (m *PlayerJoined) readFields(r *fieldReader)   { m.Player = r.player() }

// PlayerLeft notifies remaining members that a player left the room,
// voluntarily or by disconnect.
type PlayerLeft struct {
	Header
	PlayerID int32
	Name     string
}

func (*PlayerLeft) Kind() Kind { return KindPlayerLeft }
func (m *PlayerLeft) appendFields(w *fieldWriter) {
	w.i32(m.PlayerID)
	w.str(m.Name)
}
func (m *PlayerLeft) readFields(r *fieldReader) {
	m.PlayerID = r.i32()
	m.Name = r.str()
}

// HostChanged announces host migration to the surviving members.
type HostChanged struct {
	Header
	NewHostID   int32
	NewHostName string
}

func (*HostChanged) Kind() Kind { return KindHostChanged }
func (m *HostChanged) appendFields(w *fieldWriter) {
	w.i32(m.NewHostID)
	w.str(m.NewHostName)
}
func (m *HostChanged) readFields(r *fieldReader) {
	m.NewHostID = r.i32()
	m.NewHostName = r.str()
}

// Kick is a host-only request to remove a member from the room.
type Kick struct {
	Header
	TargetID int32
}

func (*Kick) Kind() Kind                    { return KindKick }
func (m *Kick) appendFields(w *fieldWriter) { w.i32(m.TargetID) }
func (m *Kick) readFields(r *fieldReader)   { m.TargetID = r.i32() }

// Kicked tells the target it was forcibly removed, distinguishing the
// removal from a voluntary leave.
type Kicked struct {
	Header
	Reason string
}

func (*Kicked) Kind() Kind                    { return KindKicked }
func (m *Kicked) appendFields(w *fieldWriter) { w.str(m.Reason) }
func (m *Kicked) readFields(r *fieldReader)   { m.Reason = r.str() }

// SetReady toggles the requester's ready flag.
type SetReady struct {
	Header
	Ready bool
}

func (*SetReady) Kind() Kind                    { return KindSetReady }
func (m *SetReady) appendFields(w *fieldWriter) { w.bool(m.Ready) }
func (m *SetReady) readFields(r *fieldReader)   { m.Ready = r.bool() }

// PlayerReady broadcasts a member's ready-flag change to the room.
type PlayerReady struct {
	Header
	PlayerID int32
	Ready    bool
}

func (*PlayerReady) Kind() Kind { return KindPlayerReady }
func (m *PlayerReady) appendFields(w *fieldWriter) {
	w.i32(m.PlayerID)
	w.bool(m.Ready)
}
func (m *PlayerReady) readFields(r *fieldReader) {
	m.PlayerID = r.i32()
	m.Ready = r.bool()
}

// StartGame is a host-only request to flip the room in-game.
type StartGame struct {
	Header
}

func (*StartGame) Kind() Kind                { return KindStartGame }
func (*StartGame) appendFields(*fieldWriter) {}
func (*StartGame) readFields(*fieldReader)   {}

// GameStarted notifies all members that the match began. Joins into
// the room are rejected from this point on.
type GameStarted struct {
	Header
	RoomID string
}

func (*GameStarted) Kind() Kind                    { return KindGameStarted }
func (m *GameStarted) appendFields(w *fieldWriter) { w.str(m.RoomID) }
func (m *GameStarted) readFields(r *fieldReader)   { m.RoomID = r.str() }

// RoomList requests the list of joinable rooms.
type RoomList struct {
	Header
}

func (*RoomList) Kind() Kind                { return KindRoomList }
func (*RoomList) appendFields(*fieldWriter) {}
func (*RoomList) readFields(*fieldReader)   {}

// RoomListReply carries the joinable rooms. On the wire the rooms
// travel in the line-oriented text sub-format (see FormatRoomList),
// chosen for easy debugging over the binary envelope.
type RoomListReply struct {
	Header
	Rooms []RoomSummary
}

func (*RoomListReply) Kind() Kind { return KindRoomListReply }
func (m *RoomListReply) appendFields(w *fieldWriter) {
	w.blob([]byte(FormatRoomList(m.Rooms)))
}
func (m *RoomListReply) readFields(r *fieldReader) {
	rooms, err := ParseRoomList(string(r.blob()))
	if err != nil {
		r.fail("room list: %v", err)
		return
	}
	m.Rooms = rooms
}

// --- gameplay entity sync ---

// EntityTransform syncs one entity's position and facing. The network
// layer only moves it; interpretation belongs to gameplay code.
type EntityTransform struct {
	Header
	EntityID int32
	X, Y, Z  float32
	Yaw      float32
}

func (*EntityTransform) Kind() Kind { return KindEntityTransform }
func (m *EntityTransform) appendFields(w *fieldWriter) {
	w.i32(m.EntityID)
	w.f32(m.X)
	w.f32(m.Y)
	w.f32(m.Z)
	w.f32(m.Yaw)
}
func (m *EntityTransform) readFields(r *fieldReader) {
	m.EntityID = r.i32()
	m.X = r.f32()
	m.Y = r.f32()
	m.Z = r.f32()
	m.Yaw = r.f32()
}

// DamageEvent reports damage dealt to a target entity.
type DamageEvent struct {
	Header
	TargetID int32
	Amount   int32
}

func (*DamageEvent) Kind() Kind { return KindDamageEvent }
func (m *DamageEvent) appendFields(w *fieldWriter) {
	w.i32(m.TargetID)
	w.i32(m.Amount)
}
func (m *DamageEvent) readFields(r *fieldReader) {
	m.TargetID = r.i32()
	m.Amount = r.i32()
}

// GameData carries an opaque gameplay payload.
type GameData struct {
	Header
	Data []byte
}

func (*GameData) Kind() Kind                    { return KindGameData }
func (m *GameData) appendFields(w *fieldWriter) { w.blob(m.Data) }
func (m *GameData) readFields(r *fieldReader)   { m.Data = r.blob() }

// --- chat / system ---

// Chat is a room-scoped text message, forwarded verbatim.
type Chat struct {
	Header
	Text string
}

func (*Chat) Kind() Kind                    { return KindChat }
func (m *Chat) appendFields(w *fieldWriter) { w.str(m.Text) }
func (m *Chat) readFields(r *fieldReader)   { m.Text = r.str() }

// SystemNotice is a human-readable notice originated by the authority.
type SystemNotice struct {
	Header
	Text string
}

func (*SystemNotice) Kind() Kind                    { return KindSystemNotice }
func (m *SystemNotice) appendFields(w *fieldWriter) { w.str(m.Text) }
func (m *SystemNotice) readFields(r *fieldReader)   { m.Text = r.str() }

// newMessage returns a zero value for the given kind, or nil for
// kinds outside the closed enumeration.
func newMessage(k Kind) Message {
	switch k {
	case KindWelcome:
		return &Welcome{}
	case KindPing:
		return &Ping{}
	case KindPong:
		return &Pong{}
	case KindDisconnect:
		return &Disconnect{}
	case KindCreateRoom:
		return &CreateRoom{}
	case KindCreateRoomReply:
		return &CreateRoomReply{}
	case KindJoinRoom:
		return &JoinRoom{}
	case KindJoinRoomReply:
		return &JoinRoomReply{}
	case KindLeaveRoom:
		return &LeaveRoom{}
	case KindPlayerJoined:
		return &PlayerJoined{}
	case KindPlayerLeft:
		return &PlayerLeft{}
	case KindHostChanged:
		return &HostChanged{}
	case KindKick:
		return &Kick{}
	case KindKicked:
		return &Kicked{}
	case KindSetReady:
		return &SetReady{}
	case KindPlayerReady:
		return &PlayerReady{}
	case KindStartGame:
		return &StartGame{}
	case KindGameStarted:
		return &GameStarted{}
	case KindRoomList:
		return &RoomList{}
	case KindRoomListReply:
		return &RoomListReply{}
	case KindEntityTransform:
		return &EntityTransform{}
	case KindDamageEvent:
		return &DamageEvent{}
	case KindGameData:
		return &GameData{}
	case KindChat:
		return &Chat{}
	case KindSystemNotice:
		return &SystemNotice{}
	default:
		return nil
	}
}

// Kinds lists every kind in the closed enumeration, in wire order.
// Useful for exhaustive round-trip checks.
func Kinds() []Kind {
	return []Kind{
		KindWelcome, KindPing, KindPong, KindDisconnect,
		KindCreateRoom, KindCreateRoomReply, KindJoinRoom, KindJoinRoomReply,
		KindLeaveRoom, KindPlayerJoined, KindPlayerLeft, KindHostChanged,
		KindKick, KindKicked, KindSetReady, KindPlayerReady,
		KindStartGame, KindGameStarted, KindRoomList, KindRoomListReply,
		KindEntityTransform, KindDamageEvent, KindGameData,
		KindChat, KindSystemNotice,
	}
}
