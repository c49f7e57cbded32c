package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WangPengPT/ActionGame-sub000/internal/config"
	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
)

const (
	dialTimeout    = 5 * time.Second
	welcomeTimeout = 5 * time.Second
)

// ClientEndpoint is the dialing side of both topologies: a client of
// an embedded host or of the relay process. It owns exactly one
// connection, the authority link, and learns its logical id from
// the Welcome frame the authority sends on accept.
type ClientEndpoint struct {
	addr    string
	liveCfg config.LivenessConfig
	logger  *zap.Logger

	dispatcher *Dispatcher
	liveness   *Liveness

	mu      sync.Mutex
	conn    *Conn
	localID int32
	running bool

	wg sync.WaitGroup
}

// NewClientEndpoint creates a client endpoint dialing addr.
//
// Precondition: addr must be a "host:port" string; logger must be
// non-nil.
func NewClientEndpoint(addr string, liveCfg config.LivenessConfig, logger *zap.Logger) *ClientEndpoint {
	c := &ClientEndpoint{
		addr:       addr,
		liveCfg:    liveCfg,
		logger:     logger,
		dispatcher: NewDispatcher(DefaultQueueSize, logger),
	}
	c.liveness = NewLiveness(liveCfg.ScanInterval, c.snapshot, c.expire, logger)
	return c
}

// Start dials the authority, waits for the Welcome frame carrying the
// assigned connection id, then launches the read loop and liveness
// scan. Blocking until the handshake completes or fails.
//
// Postcondition: On nil return, LocalID is valid and an
// EventConnected has been queued.
func (e *ClientEndpoint) Start() error {
	start := time.Now()

	raw, err := net.DialTimeout("tcp", e.addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", e.addr, err)
	}

	conn := NewConn(AuthorityID, 0, raw, e.logger)

	// The Welcome must arrive promptly; a silent accept is a fault.
	_ = raw.SetReadDeadline(time.Now().Add(welcomeTimeout))
	f, err := conn.readFrame()
	if err != nil {
		raw.Close()
		return fmt.Errorf("reading welcome from %s: %w", e.addr, err)
	}
	msg, err := f.Decode()
	if err != nil {
		raw.Close()
		return fmt.Errorf("decoding welcome from %s: %w", e.addr, err)
	}
	welcome, ok := msg.(*protocol.Welcome)
	if !ok {
		raw.Close()
		return fmt.Errorf("expected welcome from %s, got %s", e.addr, f.Kind)
	}
	_ = raw.SetReadDeadline(time.Time{})

	conn.local = welcome.AssignedID

	e.mu.Lock()
	e.conn = conn
	e.localID = welcome.AssignedID
	e.running = true
	e.mu.Unlock()

	e.logger.Info("connected to authority",
		zap.String("addr", e.addr),
		zap.Int32("assigned_id", welcome.AssignedID),
		zap.Duration("elapsed", time.Since(start)),
	)

	e.liveness.Start()

	e.dispatcher.Push(Event{Type: EventConnected, ConnID: AuthorityID})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		conn.ReadLoop(e.onFrame, e.onClosed)
	}()
	return nil
}

func (e *ClientEndpoint) onFrame(c *Conn, f protocol.Frame) {
	e.dispatcher.Push(Event{Type: EventFrame, ConnID: AuthorityID, Frame: f})
}

func (e *ClientEndpoint) onClosed(*Conn) {
	e.mu.Lock()
	e.conn = nil
	e.mu.Unlock()
	e.dispatcher.Push(Event{Type: EventDisconnected, ConnID: AuthorityID})
}

func (e *ClientEndpoint) snapshot() []*Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	return []*Conn{e.conn}
}

func (e *ClientEndpoint) expire(c *Conn) {
	c.Close()
}

// LocalID returns the id assigned by the authority, valid after
// Start.
func (e *ClientEndpoint) LocalID() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localID
}

// Events returns the endpoint's inbound queue.
func (e *ClientEndpoint) Events() *Dispatcher { return e.dispatcher }

// SendTo writes toward the authority. A client endpoint has exactly
// one egress; the authority routes from there, so every target id
// takes the same link.
func (e *ClientEndpoint) SendTo(_ int32, m protocol.Message) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("client endpoint: not connected")
	}
	return conn.Send(m)
}

// Broadcast hands m to the authority, which performs the room-scoped
// fan-out and honors the exclusion there.
func (e *ClientEndpoint) Broadcast(m protocol.Message, _ int32) error {
	return e.SendTo(AuthorityID, m)
}

// Stop announces a deliberate disconnect to the authority, closes the
// link, and releases the event queue. A reconnection controller must
// not treat the resulting disconnect as a fault; the session layer
// marks the closure expected before calling Stop.
func (e *ClientEndpoint) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	conn := e.conn
	localID := e.localID
	e.mu.Unlock()

	if conn != nil {
		_ = conn.Send(&protocol.Disconnect{
			Header: protocol.Header{SenderID: localID, Timestamp: protocol.Now()},
			Reason: "client closing",
		})
		conn.Close()
	}
	e.liveness.Stop()
	e.wg.Wait()
	e.dispatcher.Close()

	e.logger.Info("client endpoint stopped", zap.String("addr", e.addr))
}
