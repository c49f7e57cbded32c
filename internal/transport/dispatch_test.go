package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
)

func frameOf(t *testing.T, m protocol.Message) protocol.Frame {
	t.Helper()
	f, err := protocol.ToFrame(m)
	require.NoError(t, err)
	return f
}

func TestDispatcherRoutesByKind(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))

	var got []string
	d.Handle(protocol.KindChat, func(connID int32, msg protocol.Message) {
		got = append(got, msg.(*protocol.Chat).Text)
	})

	d.Push(Event{Type: EventFrame, ConnID: 1, Frame: frameOf(t, &protocol.Chat{Text: "one"})})
	d.Push(Event{Type: EventFrame, ConnID: 1, Frame: frameOf(t, &protocol.Chat{Text: "two"})})

	assert.Equal(t, 2, d.Poll())
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestDispatcherFrameHandlerConsumes(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))

	var typed, raw int
	d.Handle(protocol.KindGameData, func(int32, protocol.Message) { typed++ })
	d.HandleFrames(func(_ int32, f protocol.Frame) bool {
		raw++
		return f.Kind == protocol.KindGameData
	})

	d.Push(Event{Type: EventFrame, ConnID: 1, Frame: frameOf(t, &protocol.GameData{Data: []byte{1}})})
	d.Push(Event{Type: EventFrame, ConnID: 1, Frame: frameOf(t, &protocol.Chat{Text: "x"})})
	d.Poll()

	assert.Equal(t, 2, raw, "frame handler sees every frame")
	assert.Equal(t, 0, typed, "consumed frames never reach the kind handler")
}

func TestDispatcherUnhandledKindIsDropped(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))
	d.Push(Event{Type: EventFrame, ConnID: 1, Frame: frameOf(t, &protocol.Chat{Text: "nobody home"})})
	assert.Equal(t, 1, d.Poll())
}

func TestDispatcherUndecodableFrameIsDropped(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))

	var called bool
	d.Handle(protocol.KindChat, func(int32, protocol.Message) { called = true })

	// Well-framed but with trailing garbage after the last field.
	f := frameOf(t, &protocol.Chat{Text: "ok"})
	f.Payload = append(f.Payload, 0xAA)
	d.Push(Event{Type: EventFrame, ConnID: 1, Frame: f})

	assert.Equal(t, 1, d.Poll())
	assert.False(t, called, "a protocol fault drops the frame, not the process")
}

func TestDispatcherConnectionHooks(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))

	var order []string
	d.OnConnected(func(connID int32) { order = append(order, "first") })
	d.OnConnected(func(connID int32) { order = append(order, "second") })
	d.OnDisconnected(func(connID int32) { order = append(order, "down") })

	d.Push(Event{Type: EventConnected, ConnID: 5})
	d.Push(Event{Type: EventDisconnected, ConnID: 5})
	d.Poll()

	assert.Equal(t, []string{"first", "second", "down"}, order)
}

func TestDispatcherPollHandlesReentrantPush(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))

	var texts []string
	d.Handle(protocol.KindChat, func(_ int32, msg protocol.Message) {
		text := msg.(*protocol.Chat).Text
		texts = append(texts, text)
		if text == "first" {
			d.Push(Event{Type: EventFrame, ConnID: 1, Frame: frameOf(t, &protocol.Chat{Text: "reentrant"})})
		}
	})

	d.Push(Event{Type: EventFrame, ConnID: 1, Frame: frameOf(t, &protocol.Chat{Text: "first"})})
	assert.Equal(t, 2, d.Poll(), "events pushed mid-drain are handled in the same call")
	assert.Equal(t, []string{"first", "reentrant"}, texts)
}

func TestDispatcherPushAfterCloseDropsEvent(t *testing.T) {
	d := NewDispatcher(16, zaptest.NewLogger(t))
	d.Close()

	d.Push(Event{Type: EventConnected, ConnID: 1})

	assert.Equal(t, 0, d.Poll(), "events pushed after close are discarded")
}

func TestDispatcherPushAfterCloseDoesNotBlock(t *testing.T) {
	d := NewDispatcher(1, zaptest.NewLogger(t))
	d.Push(Event{Type: EventConnected, ConnID: 1})
	d.Close()

	done := make(chan struct{})
	go func() {
		// Queue is full and nobody drains it; Close must release us.
		d.Push(Event{Type: EventConnected, ConnID: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked after close")
	}
}
