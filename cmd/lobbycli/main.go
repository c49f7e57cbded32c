// Package main provides an interactive session client. It can host a
// game itself, embedding the listener and authority in-process, or
// join one through a host or relay address.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/WangPengPT/ActionGame-sub000/internal/config"
	"github.com/WangPengPT/ActionGame-sub000/internal/lobby"
	"github.com/WangPengPT/ActionGame-sub000/internal/observability"
	"github.com/WangPengPT/ActionGame-sub000/internal/protocol"
	"github.com/WangPengPT/ActionGame-sub000/internal/transport"
)

const pollInterval = 50 * time.Millisecond

type cli struct {
	session    *lobby.Session
	reconnect  *lobby.Reconnector
	lastSecret string
}

func main() {
	configPath := flag.String("config", "", "path to configuration file, defaults apply when empty")
	mode := flag.String("mode", "client", "client to join a server, host to embed one")
	name := flag.String("name", "", "player name, overrides configuration")
	addr := flag.String("addr", "", "server address for client mode, overrides configuration")
	flag.Parse()

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}
	if *name != "" {
		cfg.Client.PlayerName = *name
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	var dial func() (transport.Endpoint, error)
	switch *mode {
	case "host":
		dial = func() (transport.Endpoint, error) {
			ep := transport.NewHostEndpoint(cfg.Host, cfg.Liveness, logger)
			// An embedded host carries exactly one room: its own.
			registry := lobby.NewRegistry(cfg.Lobby, 1, logger)
			lobby.NewAuthority(registry, ep, false, logger).Bind(ep.Events())
			if err := ep.Start(); err != nil {
				return nil, err
			}
			fmt.Printf("hosting on %s\n", ep.Addr())
			return ep, nil
		}
	case "client":
		target := cfg.Client.Addr()
		if *addr != "" {
			target = *addr
		}
		dial = func() (transport.Endpoint, error) {
			ep := transport.NewClientEndpoint(target, cfg.Liveness, logger)
			if err := ep.Start(); err != nil {
				return nil, err
			}
			return ep, nil
		}
	default:
		log.Fatalf("unknown mode %q, want host or client", *mode)
	}

	c := &cli{}
	c.session = lobby.NewSession(dial, cfg.Client.PlayerName, logger)
	bindOutput(c.session)

	if *mode == "client" {
		c.reconnect = lobby.NewReconnector(cfg.Reconnect,
			c.session.Connect,
			func(roomID string) error { return c.session.JoinRoom(roomID, c.lastSecret) },
			logger,
		)
		c.reconnect.OnReconnected = func(room string) {
			if room != "" {
				fmt.Printf("reconnected, rejoining room %s\n", room)
			} else {
				fmt.Println("reconnected")
			}
		}
		c.reconnect.OnFailed = func(attempts int) {
			fmt.Printf("gave up after %d reconnect attempts\n", attempts)
		}
		c.session.OnDisconnected = func(expected bool) {
			if expected {
				return
			}
			fmt.Println("connection lost, retrying")
			c.reconnect.RememberRoom(c.session.LastRoomID())
			c.reconnect.TriggerDisconnect()
		}
	}

	if err := c.session.Connect(); err != nil {
		logger.Fatal("connecting", zap.Error(err))
	}
	fmt.Printf("connected as %s (id %d), try help\n", cfg.Client.PlayerName, c.session.LocalID())

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.session.Poll()
		case line, ok := <-lines:
			if !ok {
				c.shutdown()
				return
			}
			if done := c.execute(strings.TrimSpace(line)); done {
				c.shutdown()
				return
			}
		}
	}
}

func (c *cli) shutdown() {
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.session.Close()
}

func (c *cli) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "help":
		fmt.Println("commands: create <name> <max> [password], join <room> [password], leave,")
		fmt.Println("          list, players, ready on|off, start, kick <id>, say <text>, quit")
	case "create":
		if len(args) < 2 {
			fmt.Println("usage: create <name> <max> [password]")
			return false
		}
		max, convErr := strconv.Atoi(args[1])
		if convErr != nil || max < 1 || max > 255 {
			fmt.Println("max must be a number between 1 and 255")
			return false
		}
		secret := ""
		if len(args) > 2 {
			secret = args[2]
		}
		c.lastSecret = secret
		err = c.session.CreateRoom(args[0], uint8(max), secret)
	case "join":
		if len(args) < 1 {
			fmt.Println("usage: join <room> [password]")
			return false
		}
		secret := ""
		if len(args) > 1 {
			secret = args[1]
		}
		c.lastSecret = secret
		err = c.session.JoinRoom(args[0], secret)
	case "leave":
		err = c.session.LeaveRoom()
	case "list":
		err = c.session.RequestRoomList()
	case "players":
		for _, p := range c.session.Players() {
			fmt.Println(formatPlayer(p))
		}
	case "ready":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			fmt.Println("usage: ready on|off")
			return false
		}
		err = c.session.SetReady(args[0] == "on")
	case "start":
		err = c.session.StartGame()
	case "kick":
		if len(args) != 1 {
			fmt.Println("usage: kick <id>")
			return false
		}
		id, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			fmt.Println("id must be a number")
			return false
		}
		err = c.session.Kick(int32(id))
	case "say":
		if len(args) == 0 {
			fmt.Println("usage: say <text>")
			return false
		}
		err = c.session.SendChat(strings.Join(args, " "))
	case "quit":
		return true
	default:
		fmt.Printf("unknown command %q, try help\n", cmd)
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
	return false
}

func bindOutput(s *lobby.Session) {
	s.OnCreateResult = func(ok bool, roomID string, _ protocol.RefusalCode, reason string) {
		if ok {
			fmt.Printf("room created: %s\n", roomID)
		} else {
			fmt.Printf("create refused: %s\n", reason)
		}
	}
	s.OnJoinResult = func(ok bool, roomID string, _ protocol.RefusalCode, reason string) {
		if ok {
			fmt.Printf("joined room %s\n", roomID)
			for _, p := range s.Players() {
				fmt.Println(formatPlayer(p))
			}
		} else {
			fmt.Printf("join refused: %s\n", reason)
		}
	}
	s.OnPlayerJoined = func(p protocol.PlayerInfo) {
		fmt.Printf("%s joined (id %d)\n", p.Name, p.ID)
	}
	s.OnPlayerLeft = func(id int32, name string) {
		fmt.Printf("%s left (id %d)\n", name, id)
	}
	s.OnHostChanged = func(id int32, name string) {
		fmt.Printf("%s is now the host (id %d)\n", name, id)
		if s.IsHost() {
			fmt.Println("you are the host now")
		}
	}
	s.OnPlayerReady = func(id int32, ready bool) {
		state := "not ready"
		if ready {
			state = "ready"
		}
		fmt.Printf("player %d is %s\n", id, state)
	}
	s.OnKicked = func(reason string) {
		fmt.Printf("removed from room: %s\n", reason)
	}
	s.OnGameStarted = func(roomID string) {
		fmt.Printf("game started in room %s\n", roomID)
	}
	s.OnChat = func(senderID int32, text string) {
		fmt.Printf("[%d] %s\n", senderID, text)
	}
	s.OnNotice = func(text string) {
		fmt.Printf("* %s\n", text)
	}
	s.OnRoomList = func(rooms []protocol.RoomSummary) {
		if len(rooms) == 0 {
			fmt.Println("no joinable rooms")
			return
		}
		for _, r := range rooms {
			locked := ""
			if r.HasPassword {
				locked = " [locked]"
			}
			fmt.Printf("%s  %s  %d/%d  host=%s%s\n",
				r.ID, r.Name, r.Players, r.MaxPlayers, r.HostName, locked)
		}
	}
}

func formatPlayer(p protocol.PlayerInfo) string {
	tags := make([]string, 0, 2)
	if p.Host {
		tags = append(tags, "host")
	}
	if p.Ready {
		tags = append(tags, "ready")
	}
	suffix := ""
	if len(tags) > 0 {
		suffix = " (" + strings.Join(tags, ", ") + ")"
	}
	return fmt.Sprintf("  %d %s%s", p.ID, p.Name, suffix)
}
