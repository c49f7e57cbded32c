package relay

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Console is a line-oriented operator interface for a running relay.
// It reads commands from in and writes replies to out, so tests can
// drive it with pipes while the binary wires it to stdin and stdout.
type Console struct {
	srv      *Server
	in       io.Reader
	out      io.Writer
	shutdown func()
	logger   *zap.Logger

	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewConsole creates a console over the given relay. shutdown is
// invoked when the operator types quit; it should stop the whole
// process.
func NewConsole(srv *Server, in io.Reader, out io.Writer, shutdown func(), logger *zap.Logger) *Console {
	return &Console{
		srv:      srv,
		in:       in,
		out:      out,
		shutdown: shutdown,
		logger:   logger,
		quit:     make(chan struct{}),
	}
}

// Start launches the command loop.
func (c *Console) Start() error {
	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop terminates the console. The command loop exits on its next
// read; a blocked read on an interactive terminal is abandoned.
func (c *Console) Stop() {
	c.once.Do(func() { close(c.quit) })
}

func (c *Console) run() {
	defer c.wg.Done()

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case <-c.quit:
			return
		default:
		}
		if done := c.execute(strings.TrimSpace(scanner.Text())); done {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("console read failed", zap.Error(err))
	}
}

func (c *Console) execute(line string) bool {
	switch line {
	case "":
	case "help":
		fmt.Fprintln(c.out, "commands: list, status, rooms, quit")
	case "list", "status":
		fmt.Fprintf(c.out, "addr=%s connections=%d rooms=%d\n",
			c.srv.Addr(), c.srv.ConnCount(), c.srv.RoomCount())
	case "rooms":
		rooms := c.srv.Rooms()
		if len(rooms) == 0 {
			fmt.Fprintln(c.out, "no joinable rooms")
			return false
		}
		for _, r := range rooms {
			locked := "open"
			if r.HasPassword {
				locked = "locked"
			}
			fmt.Fprintf(c.out, "%s  %s  %d/%d  %s  host=%s\n",
				r.ID, r.Name, r.Players, r.MaxPlayers, locked, r.HostName)
		}
	case "quit":
		fmt.Fprintln(c.out, "shutting down")
		if c.shutdown != nil {
			c.shutdown()
		}
		return true
	default:
		fmt.Fprintf(c.out, "unknown command %q, try help\n", line)
	}
	return false
}
