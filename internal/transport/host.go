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

// HostEndpoint is the embedded-host topology: the local peer owns the
// listener and every other participant connects directly to it. The
// host's own logical id is reserved as 0; accepted connections are
// assigned incrementing ids starting at 1. The host is the authority:
// frames it sends to id 0 loop back through its own dispatcher, so
// local delivery follows exactly the same single-consumer path as
// remote delivery.
type HostEndpoint struct {
	cfg     config.HostConfig
	liveCfg config.LivenessConfig
	logger  *zap.Logger

	dispatcher *Dispatcher
	liveness   *Liveness

	mu       sync.Mutex
	listener net.Listener
	conns    map[int32]*Conn
	nextID   int32
	running  bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewHostEndpoint creates a host endpoint.
//
// Precondition: logger must be non-nil; cfg must be validated.
// Postcondition: Returns an endpoint ready to Start.
func NewHostEndpoint(cfg config.HostConfig, liveCfg config.LivenessConfig, logger *zap.Logger) *HostEndpoint {
	h := &HostEndpoint{
		cfg:        cfg,
		liveCfg:    liveCfg,
		logger:     logger,
		dispatcher: NewDispatcher(DefaultQueueSize, logger),
		conns:      make(map[int32]*Conn),
		nextID:     1,
		quit:       make(chan struct{}),
	}
	h.liveness = NewLiveness(liveCfg.ScanInterval, h.snapshot, h.expire, logger)
	return h
}

// Start opens the listener, launches the accept loop and the liveness
// scan, and announces the local view as connected.
//
// Precondition: The endpoint must not already be running.
func (h *HostEndpoint) Start() error {
	start := time.Now()

	listener, err := net.Listen("tcp", h.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.cfg.Addr(), err)
	}

	h.mu.Lock()
	h.listener = listener
	h.running = true
	h.mu.Unlock()

	h.logger.Info("host endpoint listening",
		zap.String("addr", listener.Addr().String()),
		zap.Int("max_clients", h.cfg.MaxClients),
		zap.Duration("startup", time.Since(start)),
	)

	h.liveness.Start()

	h.wg.Add(1)
	go h.acceptLoop(listener)

	// The host's own client view is online as soon as the listener is.
	h.dispatcher.Push(Event{Type: EventConnected, ConnID: AuthorityID})
	return nil
}

func (h *HostEndpoint) acceptLoop(listener net.Listener) {
	defer h.wg.Done()
	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-h.quit:
				return
			default:
				h.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}
		h.accept(raw)
	}
}

func (h *HostEndpoint) accept(raw net.Conn) {
	h.mu.Lock()
	if len(h.conns) >= h.cfg.MaxClients {
		h.mu.Unlock()
		h.logger.Warn("rejecting connection, at capacity",
			zap.String("remote_addr", raw.RemoteAddr().String()),
			zap.Int("max_clients", h.cfg.MaxClients),
		)
		raw.Close()
		return
	}
	id := h.nextID
	h.nextID++
	c := NewConn(id, AuthorityID, raw, h.logger)
	h.conns[id] = c
	h.mu.Unlock()

	h.logger.Info("client connected",
		zap.Int32("conn_id", id),
		zap.String("remote_addr", raw.RemoteAddr().String()),
	)

	welcome := &protocol.Welcome{
		Header:     protocol.Header{SenderID: AuthorityID, Timestamp: protocol.Now()},
		AssignedID: id,
	}
	if err := c.Send(welcome); err != nil {
		h.logger.Warn("welcome write failed, dropping connection",
			zap.Int32("conn_id", id),
			zap.Error(err),
		)
		h.drop(c)
		return
	}

	h.dispatcher.Push(Event{Type: EventConnected, ConnID: id})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.ReadLoop(h.onFrame, h.onClosed)
	}()
}

func (h *HostEndpoint) onFrame(c *Conn, f protocol.Frame) {
	h.dispatcher.Push(Event{Type: EventFrame, ConnID: c.ID(), Frame: f})
}

func (h *HostEndpoint) onClosed(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.ID())
	h.mu.Unlock()
	h.dispatcher.Push(Event{Type: EventDisconnected, ConnID: c.ID()})
}

func (h *HostEndpoint) drop(c *Conn) {
	c.Close()
	h.mu.Lock()
	delete(h.conns, c.ID())
	h.mu.Unlock()
}

func (h *HostEndpoint) snapshot() []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// expire force-closes a timed-out connection; its read loop fires the
// disconnect event.
func (h *HostEndpoint) expire(c *Conn) {
	c.Close()
}

// LocalID returns 0: the host's reserved logical id.
func (h *HostEndpoint) LocalID() int32 { return AuthorityID }

// Events returns the endpoint's inbound queue.
func (h *HostEndpoint) Events() *Dispatcher { return h.dispatcher }

// Addr returns the actual listening address, or "" before Start.
// Useful with port 0.
func (h *HostEndpoint) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return ""
}

// SendTo sends toward one connection id. Id 0 is the host's own local
// view: the message loops back through the dispatcher instead of
// touching a socket.
func (h *HostEndpoint) SendTo(connID int32, m protocol.Message) error {
	if connID == AuthorityID {
		f, err := protocol.ToFrame(m)
		if err != nil {
			return err
		}
		h.dispatcher.Push(Event{Type: EventFrame, ConnID: AuthorityID, Frame: f})
		return nil
	}

	h.mu.Lock()
	c := h.conns[connID]
	h.mu.Unlock()
	if c == nil {
		return fmt.Errorf("host endpoint: no connection %d", connID)
	}
	return c.Send(m)
}

// SendFrameTo forwards an already-encoded frame to one connection id,
// looping back for id 0.
func (h *HostEndpoint) SendFrameTo(connID int32, f protocol.Frame) error {
	if connID == AuthorityID {
		h.dispatcher.Push(Event{Type: EventFrame, ConnID: AuthorityID, Frame: f})
		return nil
	}
	h.mu.Lock()
	c := h.conns[connID]
	h.mu.Unlock()
	if c == nil {
		return fmt.Errorf("host endpoint: no connection %d", connID)
	}
	return c.SendFrame(f)
}

// Broadcast encodes m once and fans it out to every connection,
// including the local view, except the excluded id.
func (h *HostEndpoint) Broadcast(m protocol.Message, except int32) error {
	f, err := protocol.ToFrame(m)
	if err != nil {
		return err
	}

	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		if c.ID() != except {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.SendFrame(f); err != nil {
			h.logger.Debug("broadcast write failed",
				zap.Int32("conn_id", c.ID()),
				zap.Error(err),
			)
		}
	}
	if except != AuthorityID {
		h.dispatcher.Push(Event{Type: EventFrame, ConnID: AuthorityID, Frame: f})
	}
	return nil
}

// Stop closes the listener and every connection, stops the liveness
// scan, and waits for all goroutines to exit.
//
// Postcondition: No endpoint goroutine is left running.
func (h *HostEndpoint) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	listener := h.listener
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	close(h.quit)
	if listener != nil {
		listener.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	h.liveness.Stop()
	h.wg.Wait()
	h.dispatcher.Close()

	h.logger.Info("host endpoint stopped")
}
