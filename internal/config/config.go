// Package config provides Viper-based configuration loading for the
// networking layer.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig holds settings for a client connecting to an authority
// (embedded host or relay).
type ClientConfig struct {
	// ServerHost is the authority's host or IP.
	ServerHost string `mapstructure:"server_host"`
	// ServerPort is the authority's TCP port.
	ServerPort int `mapstructure:"server_port"`
	// PlayerName is the display name announced on join.
	PlayerName string `mapstructure:"player_name"`
}

// Addr returns the "host:port" dial address.
func (c ClientConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// HostConfig holds settings for the embedded host topology, where one
// peer runs the listener itself.
type HostConfig struct {
	// Host is the bind address for the listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener.
	Port int `mapstructure:"port"`
	// MaxClients caps simultaneous accepted connections.
	MaxClients int `mapstructure:"max_clients"`
}

// Addr returns the "host:port" listen address.
func (h HostConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// RelayConfig holds settings for the dedicated relay process.
type RelayConfig struct {
	// Host is the bind address for the relay listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the relay listener.
	Port int `mapstructure:"port"`
	// MaxRooms caps simultaneously open rooms.
	MaxRooms int `mapstructure:"max_rooms"`
	// Console enables the operator console on stdin.
	Console bool `mapstructure:"console"`
}

// Addr returns the "host:port" listen address.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LobbyConfig holds room policy settings applied on the authority side.
type LobbyConfig struct {
	// MinPlayersToStart is the minimum member count for start-game.
	MinPlayersToStart int `mapstructure:"min_players_to_start"`
	// RequireReady requires every non-host member to be ready before
	// the host can start.
	RequireReady bool `mapstructure:"require_ready"`
}

// LivenessConfig holds heartbeat settings. A connection silent for
// more than one scan interval is pinged; silent for more than three
// intervals it is forcibly disconnected.
type LivenessConfig struct {
	// ScanInterval is the period of the liveness scan.
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

// ReconnectConfig holds client-side reconnection settings.
type ReconnectConfig struct {
	// MaxAttempts bounds reconnect attempts after an unexpected
	// disconnect.
	MaxAttempts int `mapstructure:"max_attempts"`
	// Interval is the fixed delay between attempts.
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Client    ClientConfig    `mapstructure:"client"`
	Host      HostConfig      `mapstructure:"host"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Lobby     LobbyConfig     `mapstructure:"lobby"`
	Liveness  LivenessConfig  `mapstructure:"liveness"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error
// describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateClient(c.Client); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateHost(c.Host); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRelay(c.Relay); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLobby(c.Lobby); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLiveness(c.Liveness); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateReconnect(c.Reconnect); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateClient(c ClientConfig) error {
	var errs []string
	if c.ServerHost == "" {
		errs = append(errs, "client.server_host must not be empty")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Sprintf("client.server_port must be 1-65535, got %d", c.ServerPort))
	}
	if c.PlayerName == "" {
		errs = append(errs, "client.player_name must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHost(h HostConfig) error {
	var errs []string
	if h.Port < 0 || h.Port > 65535 {
		errs = append(errs, fmt.Sprintf("host.port must be 0-65535, got %d", h.Port))
	}
	if h.MaxClients < 1 {
		errs = append(errs, fmt.Sprintf("host.max_clients must be >= 1, got %d", h.MaxClients))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	var errs []string
	if r.Port < 0 || r.Port > 65535 {
		errs = append(errs, fmt.Sprintf("relay.port must be 0-65535, got %d", r.Port))
	}
	if r.MaxRooms < 1 {
		errs = append(errs, fmt.Sprintf("relay.max_rooms must be >= 1, got %d", r.MaxRooms))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLobby(l LobbyConfig) error {
	if l.MinPlayersToStart < 1 {
		return fmt.Errorf("lobby.min_players_to_start must be >= 1, got %d", l.MinPlayersToStart)
	}
	return nil
}

func validateLiveness(l LivenessConfig) error {
	if l.ScanInterval <= 0 {
		return fmt.Errorf("liveness.scan_interval must be positive, got %s", l.ScanInterval)
	}
	return nil
}

func validateReconnect(r ReconnectConfig) error {
	var errs []string
	if r.MaxAttempts < 0 {
		errs = append(errs, fmt.Sprintf("reconnect.max_attempts must be >= 0, got %d", r.MaxAttempts))
	}
	if r.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("reconnect.interval must be positive, got %s", r.Interval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies
// environment variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with AG_ prefix
	v.SetEnvPrefix("AG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper
// instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a fully defaulted, valid configuration. Useful for
// embedding the layer without a config file.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.server_host", "127.0.0.1")
	v.SetDefault("client.server_port", 7777)
	v.SetDefault("client.player_name", "player")

	v.SetDefault("host.host", "0.0.0.0")
	v.SetDefault("host.port", 7777)
	v.SetDefault("host.max_clients", 16)

	v.SetDefault("relay.host", "0.0.0.0")
	v.SetDefault("relay.port", 7777)
	v.SetDefault("relay.max_rooms", 128)
	v.SetDefault("relay.console", true)

	v.SetDefault("lobby.min_players_to_start", 2)
	v.SetDefault("lobby.require_ready", false)

	v.SetDefault("liveness.scan_interval", "5s")

	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("reconnect.interval", "3s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
