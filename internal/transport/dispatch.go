package transport

import (
	"sync"

	"go.uber.org/zap"

	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
)

// DefaultQueueSize is the inbound event queue capacity used when the
// caller does not choose one.
const DefaultQueueSize = 1024

// EventType discriminates inbound events.
type EventType uint8

const (
	// EventConnected fires once when a connection becomes usable.
	EventConnected EventType = iota + 1
	// EventDisconnected fires at most once per connection.
	EventDisconnected
	// EventFrame carries one inbound frame.
	EventFrame
)

// Event is one entry on the inbound queue: a connect, a disconnect,
// or a frame, tagged with the connection id it came from.
type Event struct {
	Type   EventType
	ConnID int32
	Frame  protocol.Frame
}

// Handler consumes one decoded message.
type Handler func(connID int32, msg protocol.Message)

// FrameHandler sees raw frames before kind handlers. Returning true
// consumes the frame. The relay and the host use this to forward
// gameplay traffic verbatim without decoding it.
type FrameHandler func(connID int32, f protocol.Frame) bool

// Dispatcher is the single-consumer funnel between the background
// read loops and handler code. Read loops push onto a bounded queue;
// exactly one consumer drains it, via Poll (once per game tick) or
// Run (a dedicated loop on servers). Handlers therefore never run
// concurrently with themselves or with each other, which is what lets
// room and session logic go lock-light.
type Dispatcher struct {
	queue  chan Event
	logger *zap.Logger

	mu           sync.Mutex
	handlers     map[protocol.Kind]Handler
	frameHandler FrameHandler
	connected    []func(connID int32)
	disconnected []func(connID int32)

	closed    chan struct{}
	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher with the given queue capacity.
//
// Precondition: logger must be non-nil. capacity <= 0 selects
// DefaultQueueSize.
func NewDispatcher(capacity int, logger *zap.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Dispatcher{
		queue:    make(chan Event, capacity),
		logger:   logger,
		handlers: make(map[protocol.Kind]Handler),
		closed:   make(chan struct{}),
	}
}

// Handle registers the handler for one message kind, replacing any
// previous registration.
func (d *Dispatcher) Handle(k protocol.Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[k] = h
}

// HandleFrames registers the raw-frame handler consulted before kind
// handlers.
func (d *Dispatcher) HandleFrames(h FrameHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameHandler = h
}

// OnConnected appends a connect hook. Hooks run in registration
// order on the consumer context.
func (d *Dispatcher) OnConnected(fn func(connID int32)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = append(d.connected, fn)
}

// OnDisconnected appends a disconnect hook.
func (d *Dispatcher) OnDisconnected(fn func(connID int32)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = append(d.disconnected, fn)
}

// Push enqueues an event. When the queue is full it blocks, applying
// backpressure to the pushing read loop so per-connection ordering is
// preserved rather than dropping frames. Push after Close is a no-op.
func (d *Dispatcher) Push(ev Event) {
	select {
	case <-d.closed:
		return
	default:
	}
	select {
	case d.queue <- ev:
		return
	default:
	}
	select {
	case d.queue <- ev:
	case <-d.closed:
	}
}

// Poll drains every event currently queued, dispatching each in
// order, and returns the number handled. Events enqueued by handlers
// during the drain are handled in the same call. Must be invoked from
// a single consumer context only.
func (d *Dispatcher) Poll() int {
	n := 0
	for {
		select {
		case ev := <-d.queue:
			d.dispatch(ev)
			n++
		default:
			return n
		}
	}
}

// Run drains the queue until stop is closed. The server-side
// equivalent of calling Poll every tick.
func (d *Dispatcher) Run(stop <-chan struct{}) {
	for {
		select {
		case ev := <-d.queue:
			d.dispatch(ev)
		case <-stop:
			return
		}
	}
}

// Close releases blocked pushers and turns subsequent Push calls
// into no-ops. Already-queued events remain drainable.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.closed) })
}

func (d *Dispatcher) dispatch(ev Event) {
	switch ev.Type {
	case EventConnected:
		d.mu.Lock()
		hooks := append([]func(int32){}, d.connected...)
		d.mu.Unlock()
		for _, fn := range hooks {
			fn(ev.ConnID)
		}
	case EventDisconnected:
		d.mu.Lock()
		hooks := append([]func(int32){}, d.disconnected...)
		d.mu.Unlock()
		for _, fn := range hooks {
			fn(ev.ConnID)
		}
	case EventFrame:
		d.dispatchFrame(ev.ConnID, ev.Frame)
	}
}

func (d *Dispatcher) dispatchFrame(connID int32, f protocol.Frame) {
	d.mu.Lock()
	raw := d.frameHandler
	h := d.handlers[f.Kind]
	d.mu.Unlock()

	if raw != nil && raw(connID, f) {
		return
	}
	if h == nil {
		d.logger.Debug("no handler for message kind, dropping",
			zap.Stringer("kind", f.Kind),
			zap.Int32("conn_id", connID),
		)
		return
	}

	msg, err := f.Decode()
	if err != nil {
		// Protocol fault: drop the one frame, leave the connection up.
		d.logger.Warn("dropping undecodable frame",
			zap.Stringer("kind", f.Kind),
			zap.Int32("conn_id", connID),
			zap.Error(err),
		)
		return
	}
	h(connID, msg)
}
