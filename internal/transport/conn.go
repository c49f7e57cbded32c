// Package transport moves frames over TCP for both topologies. It
// owns connection lifecycle, the inbound event queue with its
// single-consumer dispatch, and liveness scanning. Room semantics
// live above it, in the lobby package.
package transport

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
)

const (
	// connWriteTimeout bounds every frame write. A peer that stops
	// reading fails the write instead of blocking the sender forever.
	connWriteTimeout = 5 * time.Second

	readBufferSize = 64 * 1024
)

// Conn wraps one live TCP socket. It owns the socket exclusively: a
// single background read loop pulls frames off it, and all writes
// serialize through one mutex so concurrent senders never interleave
// frames on the wire. A Conn is destroyed when the socket closes or a
// read fails; it is never reused.
type Conn struct {
	id     int32
	local  int32
	raw    net.Conn
	reader *bufio.Reader
	logger *zap.Logger

	writeMu    sync.Mutex
	lastSeen   atomic.Int64
	closeOnce  sync.Once
	notifyOnce sync.Once
}

// NewConn wraps a raw TCP connection.
//
// Precondition: raw must be a valid, open network connection. id is
// the locally-unique id assigned to this connection by the accepting
// side; local is the wrapping side's own logical id, used to stamp
// transport-level replies such as pongs.
// Postcondition: Returns a Conn ready for ReadLoop and Send, with
// lastSeen initialized to now.
func NewConn(id, local int32, raw net.Conn, logger *zap.Logger) *Conn {
	c := &Conn{
		id:     id,
		local:  local,
		raw:    raw,
		reader: bufio.NewReaderSize(raw, readBufferSize),
		logger: logger,
	}
	c.Touch()
	return c
}

// ID returns the connection id assigned by the accepting side.
func (c *Conn) ID() int32 { return c.id }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// LastSeen returns the time any frame (including a heartbeat) was
// last received.
func (c *Conn) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Touch records activity on the connection.
func (c *Conn) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// Send encodes m and writes it as one frame. Safe for concurrent
// callers; writes are serialized so frames never interleave.
//
// Postcondition: The full frame is written, or an error is returned
// and the connection should be treated as failed by the caller's
// disconnect path.
func (c *Conn) Send(m protocol.Message) error {
	buf, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.write(buf)
}

// SendFrame writes an already-encoded frame verbatim. Used by the
// relay and the host to forward payloads without re-encoding.
func (c *Conn) SendFrame(f protocol.Frame) error {
	return c.write(f.Encode())
}

func (c *Conn) write(buf []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.raw.SetWriteDeadline(time.Now().Add(connWriteTimeout))
	_, err := c.raw.Write(buf)
	return err
}

// Close closes the underlying socket, which also unblocks the read
// loop. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.raw.Close()
	})
	return err
}

// readFrame reads exactly one frame off the socket.
func (c *Conn) readFrame() (protocol.Frame, error) {
	return protocol.ReadFrame(c.reader)
}

// ReadLoop blocks on the socket, reading one frame at a time and
// handing each to onFrame. Pings are answered and pongs absorbed here
// at the transport level; neither reaches onFrame. Any read error,
// including a clean remote close, terminates the loop, closes the
// socket, and invokes onClosed exactly once.
//
// Precondition: onFrame and onClosed must be non-nil.
func (c *Conn) ReadLoop(onFrame func(*Conn, protocol.Frame), onClosed func(*Conn)) {
	defer c.notifyOnce.Do(func() { onClosed(c) })
	defer c.Close()

	for {
		f, err := c.readFrame()
		if err != nil {
			c.logger.Debug("connection read loop ended",
				zap.Int32("conn_id", c.id),
				zap.Error(err),
			)
			return
		}
		c.Touch()

		switch f.Kind {
		case protocol.KindPing:
			pong := &protocol.Pong{Header: protocol.Header{SenderID: c.local, Timestamp: protocol.Now()}}
			if err := c.Send(pong); err != nil {
				c.logger.Debug("pong write failed",
					zap.Int32("conn_id", c.id),
					zap.Error(err),
				)
				return
			}
			continue
		case protocol.KindPong:
			// lastSeen already touched; nothing to dispatch
			continue
		}

		onFrame(c, f)
	}
}

// Ping sends a liveness probe stamped with the local id.
func (c *Conn) Ping() error {
	return c.Send(&protocol.Ping{Header: protocol.Header{SenderID: c.local, Timestamp: protocol.Now()}})
}
