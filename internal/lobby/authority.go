package lobby

import (
	"go.uber.org/zap"

	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
	"github.com/WangPengPT/ActionGame-sub000/internal/transport"
)

// Sender is the slice of a transport the authority needs to answer
// requesters and notify room members. Both the host endpoint and the
// relay server satisfy it.
type Sender interface {
	SendTo(connID int32, m protocol.Message) error
	SendFrameTo(connID int32, f protocol.Frame) error
}

// Authority wires a Registry into a dispatcher: it handles every
// room-lifecycle request, routes room-scoped gameplay and chat
// traffic, and reacts to disconnects with leave-and-migrate. One
// Authority runs inside the embedded host and one inside the relay
// process; the only behavioral difference between the two is chat
// echo, a topology property passed at construction.
type Authority struct {
	reg      *Registry
	send     Sender
	logger   *zap.Logger
	echoChat bool
}

// NewAuthority creates an authority over the given registry.
//
// Precondition: reg, send, and logger must be non-nil. echoChat
// selects relay semantics (chat echoed back to its sender) over host
// semantics (sender excluded).
func NewAuthority(reg *Registry, send Sender, echoChat bool, logger *zap.Logger) *Authority {
	return &Authority{reg: reg, send: send, logger: logger, echoChat: echoChat}
}

// Bind registers the authority's handlers on the dispatcher. Call
// once, before the dispatcher is drained.
func (a *Authority) Bind(d *transport.Dispatcher) {
	d.Handle(protocol.KindCreateRoom, a.handleCreate)
	d.Handle(protocol.KindJoinRoom, a.handleJoin)
	d.Handle(protocol.KindLeaveRoom, a.handleLeave)
	d.Handle(protocol.KindKick, a.handleKick)
	d.Handle(protocol.KindSetReady, a.handleSetReady)
	d.Handle(protocol.KindStartGame, a.handleStart)
	d.Handle(protocol.KindRoomList, a.handleList)
	d.HandleFrames(a.routeFrame)
	d.OnDisconnected(a.HandleDisconnect)
}

func (a *Authority) hdr() protocol.Header {
	return protocol.Header{SenderID: transport.AuthorityID, Timestamp: protocol.Now()}
}

func (a *Authority) handleCreate(connID int32, msg protocol.Message) {
	req := msg.(*protocol.CreateRoom)

	reply := &protocol.CreateRoomReply{Header: a.hdr()}
	state, ref := a.reg.Create(connID, req.PlayerName, req.RoomName, int(req.MaxPlayers), req.Password)
	if ref != nil {
		reply.Code = ref.Code
		reply.Reason = ref.Reason
	} else {
		reply.Success = true
		reply.RoomID = state.RoomID
	}
	a.reply(connID, reply)
}

func (a *Authority) handleJoin(connID int32, msg protocol.Message) {
	req := msg.(*protocol.JoinRoom)

	reply := &protocol.JoinRoomReply{Header: a.hdr(), RoomID: req.RoomID}
	state, ref := a.reg.Join(connID, req.PlayerName, req.RoomID, req.Password)
	if ref != nil {
		reply.Code = ref.Code
		reply.Reason = ref.Reason
		a.reply(connID, reply)
		return
	}

	// The new member gets the full snapshot; everyone already in the
	// room gets just the delta.
	reply.Success = true
	reply.HostID = state.HostID
	reply.Players = state.Players
	a.reply(connID, reply)

	joined := state.Players[len(state.Players)-1]
	note := &protocol.PlayerJoined{Header: a.hdr(), Player: joined}
	for _, id := range state.Players {
		if id.ID != connID {
			a.reply(id.ID, note)
		}
	}
}

func (a *Authority) handleLeave(connID int32, _ protocol.Message) {
	if dep, ok := a.reg.Leave(connID); ok {
		a.notifyDeparture(dep)
	}
}

func (a *Authority) handleKick(connID int32, msg protocol.Message) {
	req := msg.(*protocol.Kick)

	dep, ref := a.reg.Kick(connID, req.TargetID)
	if ref != nil {
		a.reply(connID, &protocol.SystemNotice{Header: a.hdr(), Text: ref.Reason})
		return
	}
	a.reply(dep.PlayerID, &protocol.Kicked{Header: a.hdr(), Reason: "kicked by host"})
	a.notifyDeparture(dep)
}

func (a *Authority) handleSetReady(connID int32, msg protocol.Message) {
	req := msg.(*protocol.SetReady)

	rc, ref := a.reg.SetReady(connID, req.Ready)
	if ref != nil {
		a.reply(connID, &protocol.SystemNotice{Header: a.hdr(), Text: ref.Reason})
		return
	}
	note := &protocol.PlayerReady{Header: a.hdr(), PlayerID: rc.PlayerID, Ready: rc.Ready}
	for _, id := range rc.Members {
		a.reply(id, note)
	}
}

func (a *Authority) handleStart(connID int32, _ protocol.Message) {
	si, ref := a.reg.Start(connID)
	if ref != nil {
		a.reply(connID, &protocol.SystemNotice{Header: a.hdr(), Text: ref.Reason})
		return
	}
	note := &protocol.GameStarted{Header: a.hdr(), RoomID: si.RoomID}
	for _, id := range si.Members {
		a.reply(id, note)
	}
}

func (a *Authority) handleList(connID int32, _ protocol.Message) {
	a.reply(connID, &protocol.RoomListReply{Header: a.hdr(), Rooms: a.reg.List()})
}

// routeFrame forwards room-scoped gameplay and chat frames verbatim,
// without decoding the payload. Gameplay goes to every other member;
// chat echo back to the sender depends on topology.
func (a *Authority) routeFrame(connID int32, f protocol.Frame) bool {
	// On the embedded host, frames the authority loops back to the
	// local view arrive on conn id 0 but carry the original sender's
	// stamp. Those are deliveries, not requests to route.
	if connID == transport.AuthorityID && f.SenderID() != transport.AuthorityID {
		return false
	}
	switch {
	case f.Kind.IsGameplay():
		a.forward(connID, f, false)
		return true
	case f.Kind == protocol.KindChat:
		a.forward(connID, f, a.echoChat)
		return true
	default:
		return false
	}
}

func (a *Authority) forward(connID int32, f protocol.Frame, includeSender bool) {
	_, members, ok := a.reg.MembersOf(connID)
	if !ok {
		a.logger.Debug("dropping room-scoped frame from connection outside any room",
			zap.Stringer("kind", f.Kind),
			zap.Int32("conn_id", connID),
		)
		return
	}
	for _, id := range members {
		if id == connID && !includeSender {
			continue
		}
		if err := a.send.SendFrameTo(id, f); err != nil {
			a.logger.Debug("forward failed",
				zap.Stringer("kind", f.Kind),
				zap.Int32("to", id),
				zap.Error(err),
			)
		}
	}
}

// HandleDisconnect removes the connection from its room, migrating
// the host if needed. Registered as the dispatcher's disconnect hook.
func (a *Authority) HandleDisconnect(connID int32) {
	if dep, ok := a.reg.Leave(connID); ok {
		a.logger.Info("removing disconnected player from room",
			zap.Int32("conn_id", connID),
			zap.String("room_id", dep.RoomID),
		)
		a.notifyDeparture(dep)
	}
}

func (a *Authority) notifyDeparture(dep *Departure) {
	if dep.RoomDeleted {
		return
	}
	left := &protocol.PlayerLeft{Header: a.hdr(), PlayerID: dep.PlayerID, Name: dep.PlayerName}
	for _, id := range dep.Remaining {
		a.reply(id, left)
	}
	if dep.NewHost != nil {
		hc := &protocol.HostChanged{Header: a.hdr(), NewHostID: dep.NewHost.ID, NewHostName: dep.NewHost.Name}
		for _, id := range dep.Remaining {
			a.reply(id, hc)
		}
	}
}

func (a *Authority) reply(connID int32, m protocol.Message) {
	if err := a.send.SendTo(connID, m); err != nil {
		a.logger.Debug("reply failed",
			zap.Stringer("kind", m.Kind()),
			zap.Int32("to", connID),
			zap.Error(err),
		)
	}
}
