package transport

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
)

// tcpPair returns two ends of a real TCP connection.
func tcpPair(t *testing.T) (server, client net.Conn) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := listener.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	client, err = net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)

	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func TestConnSendDeliversFrames(t *testing.T) {
	serverRaw, clientRaw := tcpPair(t)
	logger := zaptest.NewLogger(t)

	server := NewConn(1, AuthorityID, serverRaw, logger)
	frames := make(chan protocol.Frame, 4)
	go server.ReadLoop(
		func(_ *Conn, f protocol.Frame) { frames <- f },
		func(*Conn) {},
	)

	client := NewConn(1, 1, clientRaw, logger)
	require.NoError(t, client.Send(&protocol.Chat{
		Header: protocol.Header{SenderID: 1, Timestamp: protocol.Now()},
		Text:   "hello",
	}))

	select {
	case f := <-frames:
		assert.Equal(t, protocol.KindChat, f.Kind)
		msg, err := f.Decode()
		require.NoError(t, err)
		assert.Equal(t, "hello", msg.(*protocol.Chat).Text)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestConnReadLoopAnswersPing(t *testing.T) {
	serverRaw, clientRaw := tcpPair(t)
	logger := zaptest.NewLogger(t)

	server := NewConn(1, AuthorityID, serverRaw, logger)
	var sawPing atomic.Bool
	go server.ReadLoop(
		func(_ *Conn, f protocol.Frame) {
			if f.Kind == protocol.KindPing {
				sawPing.Store(true)
			}
		},
		func(*Conn) {},
	)

	require.NoError(t, protocol.WriteFrame(clientRaw, &protocol.Ping{
		Header: protocol.Header{SenderID: 1, Timestamp: protocol.Now()},
	}))

	clientRaw.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := protocol.ReadFrame(clientRaw)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindPong, f.Kind)
	assert.Equal(t, AuthorityID, f.SenderID(), "pong is stamped with the answering side's id")
	assert.False(t, sawPing.Load(), "pings are absorbed at the transport level")
}

func TestConnReadLoopAbsorbsPong(t *testing.T) {
	serverRaw, clientRaw := tcpPair(t)
	logger := zaptest.NewLogger(t)

	server := NewConn(1, AuthorityID, serverRaw, logger)
	frames := make(chan protocol.Frame, 4)
	closed := make(chan struct{})
	go server.ReadLoop(
		func(_ *Conn, f protocol.Frame) { frames <- f },
		func(*Conn) { close(closed) },
	)

	before := server.LastSeen()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, protocol.WriteFrame(clientRaw, &protocol.Pong{
		Header: protocol.Header{SenderID: 1, Timestamp: protocol.Now()},
	}))
	require.NoError(t, protocol.WriteFrame(clientRaw, &protocol.Chat{
		Header: protocol.Header{SenderID: 1, Timestamp: protocol.Now()},
		Text:   "after pong",
	}))

	select {
	case f := <-frames:
		assert.Equal(t, protocol.KindChat, f.Kind, "pong never reaches the frame callback")
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
	assert.True(t, server.LastSeen().After(before), "pong refreshes lastSeen")

	clientRaw.Close()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not end after remote close")
	}
}

func TestConnOnClosedFiresExactlyOnce(t *testing.T) {
	serverRaw, clientRaw := tcpPair(t)
	logger := zaptest.NewLogger(t)

	server := NewConn(1, AuthorityID, serverRaw, logger)
	var closedCount atomic.Int32
	done := make(chan struct{})
	go func() {
		server.ReadLoop(
			func(*Conn, protocol.Frame) {},
			func(*Conn) { closedCount.Add(1) },
		)
		close(done)
	}()

	clientRaw.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not end")
	}

	// Racing closes after the loop ended must not re-notify.
	server.Close()
	server.Close()
	assert.Equal(t, int32(1), closedCount.Load())
}

func TestConnCloseIsIdempotent(t *testing.T) {
	serverRaw, _ := tcpPair(t)
	c := NewConn(1, AuthorityID, serverRaw, zaptest.NewLogger(t))
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestConnRejectsCorruptStream(t *testing.T) {
	serverRaw, clientRaw := tcpPair(t)
	logger := zaptest.NewLogger(t)

	server := NewConn(1, AuthorityID, serverRaw, logger)
	closed := make(chan struct{})
	go server.ReadLoop(
		func(*Conn, protocol.Frame) {},
		func(*Conn) { close(closed) },
	)

	// A declared length beyond the bound is a transport fault, not a
	// recoverable frame error.
	_, err := clientRaw.Write([]byte{0x00, 0x01, 0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop survived an oversized length declaration")
	}
}
