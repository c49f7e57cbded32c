package transport

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// timeoutFactor scales the scan interval into the silence threshold
// past which a connection is declared dead.
const timeoutFactor = 3

// Liveness periodically scans a set of connections. A connection
// silent for more than one scan interval is pinged; silent for more
// than timeoutFactor intervals it is expired. Peers answer pings at
// the transport level, so any live peer refreshes its lastSeen within
// one round trip of the ping.
type Liveness struct {
	interval time.Duration
	snapshot func() []*Conn
	expire   func(*Conn)
	logger   *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLiveness creates a scanner over the connections returned by
// snapshot. expire is called for each timed-out connection.
//
// Precondition: interval must be positive; snapshot, expire, and
// logger must be non-nil.
func NewLiveness(interval time.Duration, snapshot func() []*Conn, expire func(*Conn), logger *zap.Logger) *Liveness {
	return &Liveness{
		interval: interval,
		snapshot: snapshot,
		expire:   expire,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start launches the scan loop. Non-blocking.
func (l *Liveness) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop terminates the scan loop and waits for it to exit. Idempotent.
func (l *Liveness) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *Liveness) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.scan()
		case <-l.stop:
			return
		}
	}
}

func (l *Liveness) scan() {
	now := time.Now()
	for _, c := range l.snapshot() {
		silent := now.Sub(c.LastSeen())
		switch {
		case silent > timeoutFactor*l.interval:
			l.logger.Warn("connection timed out, disconnecting",
				zap.Int32("conn_id", c.ID()),
				zap.Duration("silent", silent),
			)
			l.expire(c)
		case silent > l.interval:
			if err := c.Ping(); err != nil {
				l.logger.Debug("liveness ping failed",
					zap.Int32("conn_id", c.ID()),
					zap.Error(err),
				)
			}
		}
	}
}
