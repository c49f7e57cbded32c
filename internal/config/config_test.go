package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Client: ClientConfig{
			ServerHost: "127.0.0.1",
			ServerPort: 7777,
			PlayerName: "ada",
		},
		Host: HostConfig{
			Host:       "0.0.0.0",
			Port:       7777,
			MaxClients: 16,
		},
		Relay: RelayConfig{
			Host:     "0.0.0.0",
			Port:     7777,
			MaxRooms: 128,
		},
		Lobby: LobbyConfig{
			MinPlayersToStart: 2,
		},
		Liveness: LivenessConfig{
			ScanInterval: 5 * time.Second,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			Interval:    3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestAddrFormatting(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "127.0.0.1:7777", cfg.Client.Addr())
	assert.Equal(t, "0.0.0.0:7777", cfg.Host.Addr())
	assert.Equal(t, "0.0.0.0:7777", cfg.Relay.Addr())
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Lobby.MinPlayersToStart)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Reconnect.Interval)
	assert.Equal(t, 5*time.Second, cfg.Liveness.ScanInterval)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
client:
  server_host: game.example.com
  server_port: 9000
  player_name: ada
relay:
  host: 0.0.0.0
  port: 9000
  max_rooms: 32
lobby:
  min_players_to_start: 3
  require_ready: true
reconnect:
  max_attempts: 10
  interval: 1s
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "game.example.com", cfg.Client.ServerHost)
	assert.Equal(t, 9000, cfg.Client.ServerPort)
	assert.Equal(t, 32, cfg.Relay.MaxRooms)
	assert.Equal(t, 3, cfg.Lobby.MinPlayersToStart)
	assert.True(t, cfg.Lobby.RequireReady)
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Reconnect.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, 16, cfg.Host.MaxClients)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestValidateClientPlayerName(t *testing.T) {
	cfg := validConfig()
	cfg.Client.PlayerName = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateHostMaxClients(t *testing.T) {
	cfg := validConfig()
	cfg.Host.MaxClients = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRelayMaxRooms(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.MaxRooms = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateLobbyMinPlayers(t *testing.T) {
	cfg := validConfig()
	cfg.Lobby.MinPlayersToStart = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateLivenessInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Liveness.ScanInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateReconnect(t *testing.T) {
	cfg := validConfig()
	cfg.Reconnect.MaxAttempts = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Reconnect.Interval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := validConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), "format %q should be valid", format)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidatePortsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.Client.ServerPort = port
		cfg.Host.Port = port
		cfg.Relay.Port = port
		if err := cfg.Validate(); err != nil {
			t.Fatalf("port %d should be valid: %v", port, err)
		}
	})
}

func TestValidateClientPortOutOfRangeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.Client.ServerPort = port
		if cfg.Validate() == nil {
			t.Fatalf("port %d should be invalid", port)
		}
	})
}
