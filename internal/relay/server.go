// Package relay implements the dedicated-server topology: a
// standalone process that owns the room table and routes traffic
// between clients, none of which can reach each other directly.
package relay

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WangPengPT/ActionGame-sub000/internal/config"
	"github.com/WangPengPT/ActionGame-sub000/internal/lobby"
	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
	"github.com/WangPengPT/ActionGame-sub000/internal/transport"
)

// Server accepts client connections and runs one lobby authority over
// all of them. It presents the same wire contract as an embedded
// host: the relay speaks as logical id 0 and assigns incrementing ids
// from 1, so a client cannot tell which topology it joined. Unlike a
// host, the relay echoes chat back to its sender.
type Server struct {
	cfg     config.RelayConfig
	liveCfg config.LivenessConfig
	logger  *zap.Logger

	dispatcher *transport.Dispatcher
	liveness   *transport.Liveness
	registry   *lobby.Registry
	authority  *lobby.Authority

	mu       sync.Mutex
	listener net.Listener
	conns    map[int32]*transport.Conn
	nextID   int32
	running  bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewServer creates a relay server.
//
// Precondition: logger must be non-nil; cfg and lobbyCfg must be
// validated.
func NewServer(cfg config.RelayConfig, lobbyCfg config.LobbyConfig, liveCfg config.LivenessConfig, logger *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		liveCfg:    liveCfg,
		logger:     logger,
		dispatcher: transport.NewDispatcher(transport.DefaultQueueSize, logger),
		conns:      make(map[int32]*transport.Conn),
		nextID:     1,
		quit:       make(chan struct{}),
	}
	s.liveness = transport.NewLiveness(liveCfg.ScanInterval, s.snapshot, s.expire, logger)
	s.registry = lobby.NewRegistry(lobbyCfg, cfg.MaxRooms, logger)
	s.authority = lobby.NewAuthority(s.registry, s, true, logger)
	s.authority.Bind(s.dispatcher)
	s.dispatcher.Handle(protocol.KindDisconnect, s.onClientQuit)
	return s
}

// Start opens the listener and launches the accept loop, the event
// loop, and the liveness scan.
//
// Precondition: The server must not already be running.
func (s *Server) Start() error {
	start := time.Now()

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("relay server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Int("max_rooms", s.cfg.MaxRooms),
		zap.Duration("startup", time.Since(start)),
	)

	s.liveness.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Run(s.quit)
	}()

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}
		s.accept(raw)
	}
}

func (s *Server) accept(raw net.Conn) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	c := transport.NewConn(id, transport.AuthorityID, raw, s.logger)
	s.conns[id] = c
	s.mu.Unlock()

	s.logger.Info("client connected",
		zap.Int32("conn_id", id),
		zap.String("remote_addr", raw.RemoteAddr().String()),
	)

	welcome := &protocol.Welcome{
		Header:     protocol.Header{SenderID: transport.AuthorityID, Timestamp: protocol.Now()},
		AssignedID: id,
	}
	if err := c.Send(welcome); err != nil {
		s.logger.Warn("welcome write failed, dropping connection",
			zap.Int32("conn_id", id),
			zap.Error(err),
		)
		c.Close()
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		return
	}

	s.dispatcher.Push(transport.Event{Type: transport.EventConnected, ConnID: id})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.ReadLoop(s.onFrame, s.onClosed)
	}()
}

func (s *Server) onFrame(c *transport.Conn, f protocol.Frame) {
	s.dispatcher.Push(transport.Event{Type: transport.EventFrame, ConnID: c.ID(), Frame: f})
}

func (s *Server) onClosed(c *transport.Conn) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
	s.logger.Info("client disconnected", zap.Int32("conn_id", c.ID()))
	s.dispatcher.Push(transport.Event{Type: transport.EventDisconnected, ConnID: c.ID()})
}

// onClientQuit handles a graceful goodbye: close the socket now
// instead of waiting for the read loop to notice the peer is gone.
func (s *Server) onClientQuit(connID int32, msg protocol.Message) {
	reason := msg.(*protocol.Disconnect).Reason
	s.logger.Info("client quitting",
		zap.Int32("conn_id", connID),
		zap.String("reason", reason),
	)
	s.mu.Lock()
	c := s.conns[connID]
	s.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

func (s *Server) snapshot() []*transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*transport.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) expire(c *transport.Conn) {
	c.Close()
}

// Addr returns the actual listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ConnCount reports the number of live client connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// RoomCount reports the number of rooms in the registry.
func (s *Server) RoomCount() int {
	return s.registry.RoomCount()
}

// Rooms lists the joinable rooms, for the operator console.
func (s *Server) Rooms() []protocol.RoomSummary {
	return s.registry.List()
}

// SendTo transmits one message to a client. The relay has no local
// player, so id 0 is not a valid target.
func (s *Server) SendTo(connID int32, m protocol.Message) error {
	s.mu.Lock()
	c := s.conns[connID]
	s.mu.Unlock()
	if c == nil {
		return fmt.Errorf("relay: no connection %d", connID)
	}
	return c.Send(m)
}

// SendFrameTo forwards an already-encoded frame to one client.
func (s *Server) SendFrameTo(connID int32, f protocol.Frame) error {
	s.mu.Lock()
	c := s.conns[connID]
	s.mu.Unlock()
	if c == nil {
		return fmt.Errorf("relay: no connection %d", connID)
	}
	return c.SendFrame(f)
}

// Stop closes the listener and every connection, stops the liveness
// scan and the event loop, and waits for all goroutines to exit.
//
// Postcondition: No server goroutine is left running.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	listener := s.listener
	conns := make([]*transport.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	close(s.quit)
	if listener != nil {
		listener.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.liveness.Stop()
	s.wg.Wait()
	s.dispatcher.Close()

	s.logger.Info("relay server stopped")
}
