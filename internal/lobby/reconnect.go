package lobby

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WangPengPT/ActionGame-sub000/internal/config"
)

// Reconnector retries a dropped connection on a fixed schedule: at
// most MaxAttempts dials, one every Interval, then gives up for good
// until the next unexpected drop. When a room was remembered before
// the drop, a successful reconnect asks to rejoin it.
//
// Attempts run on their own goroutine; the OnReconnected and OnFailed
// callbacks fire from that goroutine.
type Reconnector struct {
	OnReconnected func(rejoinedRoom string)
	OnFailed      func(attempts int)

	cfg     config.ReconnectConfig
	connect func() error
	rejoin  func(roomID string) error
	logger  *zap.Logger

	mu       sync.Mutex
	lastRoom string
	active   bool
	stopped  bool
	stop     chan struct{}
}

// NewReconnector creates an idle reconnector. connect re-dials the
// endpoint; rejoin, which may be nil, re-enters a remembered room
// after a successful connect.
func NewReconnector(cfg config.ReconnectConfig, connect func() error, rejoin func(roomID string) error, logger *zap.Logger) *Reconnector {
	return &Reconnector{
		cfg:     cfg,
		connect: connect,
		rejoin:  rejoin,
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// RememberRoom records the room to rejoin after the next reconnect.
func (r *Reconnector) RememberRoom(roomID string) {
	r.mu.Lock()
	r.lastRoom = roomID
	r.mu.Unlock()
}

// ClearRoom forgets any remembered room.
func (r *Reconnector) ClearRoom() {
	r.mu.Lock()
	r.lastRoom = ""
	r.mu.Unlock()
}

// TriggerDisconnect starts a retry run unless one is already active
// or the reconnector was stopped. Call it on an unexpected transport
// drop; expected drops never trigger retries.
func (r *Reconnector) TriggerDisconnect() {
	r.mu.Lock()
	if r.active || r.stopped {
		r.mu.Unlock()
		return
	}
	r.active = true
	r.mu.Unlock()

	go r.run()
}

// Stop cancels any in-flight retry run and disables future ones.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stop)
	r.mu.Unlock()
}

func (r *Reconnector) run() {
	defer func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		select {
		case <-ticker.C:
		case <-r.stop:
			return
		}

		r.logger.Info("reconnect attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
		)
		if err := r.connect(); err != nil {
			r.logger.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		r.mu.Lock()
		room := r.lastRoom
		r.mu.Unlock()

		if room != "" && r.rejoin != nil {
			if err := r.rejoin(room); err != nil {
				r.logger.Warn("rejoin request failed", zap.String("room_id", room), zap.Error(err))
				room = ""
			}
		}
		r.logger.Info("reconnected", zap.Int("attempts", attempt))
		if r.OnReconnected != nil {
			r.OnReconnected(room)
		}
		return
	}

	r.logger.Warn("reconnect attempts exhausted", zap.Int("attempts", r.cfg.MaxAttempts))
	r.ClearRoom()
	if r.OnFailed != nil {
		r.OnFailed(r.cfg.MaxAttempts)
	}
}
