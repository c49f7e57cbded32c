// Package protocol defines the wire format shared by every topology:
// typed, length-prefixed binary frames and the encode/decode routines
// for each message variant.
package protocol

// Kind identifies a message variant on the wire. Values are a closed,
// versioned enumeration partitioned into 100-wide bands by concern so
// new kinds can be added without colliding:
//
//	1-99    connection lifecycle
//	100-199 room lifecycle
//	200-299 gameplay entity sync
//	300-399 chat / system
type Kind uint16

const (
	// Connection lifecycle (1-99).

	// KindWelcome is sent by the accepting side immediately after accept
	// and carries the connection id it assigned to the new peer.
	KindWelcome Kind = 1
	// KindPing is a liveness probe. Answered at the transport layer.
	KindPing Kind = 2
	// KindPong answers a ping.
	KindPong Kind = 3
	// KindDisconnect announces a deliberate close, distinguishing it
	// from a transport fault.
	KindDisconnect Kind = 4

	// Room lifecycle (100-199).

	KindCreateRoom      Kind = 100
	KindCreateRoomReply Kind = 101
	KindJoinRoom        Kind = 102
	KindJoinRoomReply   Kind = 103
	KindLeaveRoom       Kind = 104
	KindPlayerJoined    Kind = 105
	KindPlayerLeft      Kind = 106
	KindHostChanged     Kind = 107
	KindKick            Kind = 108
	KindKicked          Kind = 109
	KindSetReady        Kind = 110
	KindPlayerReady     Kind = 111
	KindStartGame       Kind = 112
	KindGameStarted     Kind = 113
	KindRoomList        Kind = 114
	KindRoomListReply   Kind = 115

	// Gameplay entity sync (200-299). The authority never interprets
	// these beyond routing; payload content belongs to gameplay code.

	KindEntityTransform Kind = 200
	KindDamageEvent     Kind = 201
	KindGameData        Kind = 202

	// Chat / system (300-399).

	KindChat         Kind = 300
	KindSystemNotice Kind = 301
)

// IsConnection reports whether k is in the connection-lifecycle band.
func (k Kind) IsConnection() bool { return k >= 1 && k < 100 }

// IsRoomOp reports whether k is in the room-lifecycle band.
func (k Kind) IsRoomOp() bool { return k >= 100 && k < 200 }

// IsGameplay reports whether k is in the gameplay entity-sync band.
// Gameplay frames are forwarded room-scoped without decoding.
func (k Kind) IsGameplay() bool { return k >= 200 && k < 300 }

// IsChat reports whether k is in the chat/system band.
func (k Kind) IsChat() bool { return k >= 300 && k < 400 }

// String returns a short name for logging.
func (k Kind) String() string {
	switch k {
	case KindWelcome:
		return "welcome"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindDisconnect:
		return "disconnect"
	case KindCreateRoom:
		return "create_room"
	case KindCreateRoomReply:
		return "create_room_reply"
	case KindJoinRoom:
		return "join_room"
	case KindJoinRoomReply:
		return "join_room_reply"
	case KindLeaveRoom:
		return "leave_room"
	case KindPlayerJoined:
		return "player_joined"
	case KindPlayerLeft:
		return "player_left"
	case KindHostChanged:
		return "host_changed"
	case KindKick:
		return "kick"
	case KindKicked:
		return "kicked"
	case KindSetReady:
		return "set_ready"
	case KindPlayerReady:
		return "player_ready"
	case KindStartGame:
		return "start_game"
	case KindGameStarted:
		return "game_started"
	case KindRoomList:
		return "room_list"
	case KindRoomListReply:
		return "room_list_reply"
	case KindEntityTransform:
		return "entity_transform"
	case KindDamageEvent:
		return "damage_event"
	case KindGameData:
		return "game_data"
	case KindChat:
		return "chat"
	case KindSystemNotice:
		return "system_notice"
	default:
		return "unknown"
	}
}

// RefusalCode is a machine-readable reason attached to a failed room
// operation. The human-readable Reason string travels alongside it so
// UI code can render a specific cause.
type RefusalCode uint8

const (
	RefusalNone RefusalCode = iota
	RefusalRoomNotFound
	RefusalRoomFull
	RefusalRoomInGame
	RefusalBadPassword
	RefusalAlreadyInRoom
	RefusalNotInRoom
	RefusalNotHost
	RefusalNotEnoughPlayers
	RefusalNotReady
)

// String returns a short name for logging.
func (c RefusalCode) String() string {
	switch c {
	case RefusalNone:
		return "none"
	case RefusalRoomNotFound:
		return "room_not_found"
	case RefusalRoomFull:
		return "room_full"
	case RefusalRoomInGame:
		return "room_in_game"
	case RefusalBadPassword:
		return "bad_password"
	case RefusalAlreadyInRoom:
		return "already_in_room"
	case RefusalNotInRoom:
		return "not_in_room"
	case RefusalNotHost:
		return "not_host"
	case RefusalNotEnoughPlayers:
		return "not_enough_players"
	case RefusalNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}
