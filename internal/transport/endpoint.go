package transport

import "github.com/WangPengPT/ActionGame-sub000/internal/protocol"

// AuthorityID is the logical connection id of the session authority.
// On the embedded-host topology it is the host's own id; on the relay
// topology it addresses the relay process. Client endpoints send
// every message toward it.
const AuthorityID int32 = 0

// NoExclude passes to Broadcast when no connection is excluded.
const NoExclude int32 = -1

// Endpoint is the transport contract shared by both topologies. The
// embedded host (HostEndpoint) and the relay client
// (ClientEndpoint) realize it; session logic above is written once
// against this interface and selected at configuration time.
//
// Guarantees common to both backends: messages sent toward a given
// connection id arrive in the order sent; a disconnect event fires at
// most once per connection; broadcast honors the exclusion id.
type Endpoint interface {
	// Start brings the endpoint up (listen or dial). Non-blocking once
	// it returns.
	Start() error
	// Stop closes every connection and releases the event queue.
	Stop()
	// LocalID is this peer's logical connection id. 0 on the host;
	// assigned by the relay (and learned from Welcome) on clients.
	LocalID() int32
	// SendTo sends toward one connection id. On client endpoints all
	// ids route through the single authority link.
	SendTo(connID int32, m protocol.Message) error
	// Broadcast fans m out to every connection except the given id
	// (NoExclude for none). On client endpoints the authority performs
	// the room-scoped fan-out.
	Broadcast(m protocol.Message, except int32) error
	// Events is the endpoint's inbound queue; the owner must drain it
	// from exactly one consumer context.
	Events() *Dispatcher
}
