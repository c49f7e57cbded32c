// Package lobby implements the room/session protocol on both sides:
// the authoritative room table (host or relay) and the client-side
// session state machine, plus the reconnection controller.
package lobby

import (
	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
)

// Player is one room member on the authority side.
type Player struct {
	ConnID int32
	Name   string
	Host   bool
	Ready  bool
}

// Room is one lobby on the authority side. Players are kept in join
// order; the slice index is the seniority used for host migration.
// While a room has at least one player it has exactly one host; an
// empty room is deleted immediately, never kept around.
type Room struct {
	ID           string
	Name         string
	MaxPlayers   int
	InGame       bool
	HostID       int32
	passwordHash []byte
	players      []*Player
}

// HasPassword reports whether the room was created with a password.
func (r *Room) HasPassword() bool { return len(r.passwordHash) > 0 }

// PlayerCount returns the current member count.
func (r *Room) PlayerCount() int { return len(r.players) }

func (r *Room) playerIndex(connID int32) int {
	for i, p := range r.players {
		if p.ConnID == connID {
			return i
		}
	}
	return -1
}

func (r *Room) player(connID int32) *Player {
	if i := r.playerIndex(connID); i >= 0 {
		return r.players[i]
	}
	return nil
}

func (r *Room) hostName() string {
	if p := r.player(r.HostID); p != nil {
		return p.Name
	}
	return ""
}

// snapshot copies the member list in join order.
func (r *Room) snapshot() []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, len(r.players))
	for i, p := range r.players {
		out[i] = protocol.PlayerInfo{ID: p.ConnID, Name: p.Name, Host: p.Host, Ready: p.Ready}
	}
	return out
}

// memberIDs copies the member connection ids in join order, skipping
// except (pass a non-member id to skip none).
func (r *Room) memberIDs(except int32) []int32 {
	out := make([]int32, 0, len(r.players))
	for _, p := range r.players {
		if p.ConnID != except {
			out = append(out, p.ConnID)
		}
	}
	return out
}

func (r *Room) summary() protocol.RoomSummary {
	return protocol.RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		Players:     len(r.players),
		MaxPlayers:  r.MaxPlayers,
		HasPassword: r.HasPassword(),
		HostName:    r.hostName(),
	}
}

// Refusal is a domain fault: a room operation the authority declines.
// It carries a machine-readable code and a human-readable reason so
// UI can render the specific cause. It is a reply value, never a
// panic, and never mutates state.
type Refusal struct {
	Code   protocol.RefusalCode
	Reason string
}

// Error implements the error interface.
func (r *Refusal) Error() string { return r.Reason }

func refuse(code protocol.RefusalCode, reason string) *Refusal {
	return &Refusal{Code: code, Reason: reason}
}
