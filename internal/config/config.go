// Package config loads tx2tx's YAML configuration via Viper, following the
// shape of the teacher's internal/config package: a package-level Config
// singleton, mapstructure-tagged structs, and defaults set before the file
// is read so a missing config file still produces a runnable server.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the root of tx2tx's configuration file.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Clients []ClientBinding `mapstructure:"clients"`
	Client  ClientConfig   `mapstructure:"client"`
	Backend BackendConfig  `mapstructure:"backend"`
	Logging LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the server-role tuning parameters from spec.md §6.
type ServerConfig struct {
	Host              string  `mapstructure:"host"`
	Port              int     `mapstructure:"port"`
	EdgeThreshold     int     `mapstructure:"edge_threshold"`
	VelocityThreshold float64 `mapstructure:"velocity_threshold"`
	PollIntervalMS    int     `mapstructure:"poll_interval_ms"`
	PanicKey          string  `mapstructure:"panic_key"`
	JumpHotkey        string  `mapstructure:"jump_hotkey"`
	MaxClients        int     `mapstructure:"max_clients"`
}

// ClientBinding binds a client name to one of the four cardinal positions.
type ClientBinding struct {
	Name     string `mapstructure:"name"`
	Position string `mapstructure:"position"`
}

// ReconnectConfig controls the client's reconnection policy.
type ReconnectConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MaxAttempts  int  `mapstructure:"max_attempts"`
	DelaySeconds int  `mapstructure:"delay_seconds"`
}

// ClientConfig holds client-role settings.
type ClientConfig struct {
	ServerAddress string          `mapstructure:"server_address"`
	Reconnect     ReconnectConfig `mapstructure:"reconnect"`
}

// BackendConfig selects and configures the display backend.
type BackendConfig struct {
	Name    string            `mapstructure:"name"`
	Options map[string]string `mapstructure:"options"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the built-in defaults, used when no config file is found.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              52525,
			EdgeThreshold:     2,
			VelocityThreshold: 50,
			PollIntervalMS:    20,
			PanicKey:          "scroll_lock",
			JumpHotkey:        "ctrl+/",
			MaxClients:        4,
		},
		Clients: nil,
		Client: ClientConfig{
			Reconnect: ReconnectConfig{
				Enabled:      true,
				MaxAttempts:  0,
				DelaySeconds: 5,
			},
		},
		Backend: BackendConfig{Name: "auto"},
		Logging: LoggingConfig{Level: "info"},
	}
}

var cfg *Config

// Init loads the configuration from path (if non-empty) or from the
// standard discovery locations, validates it, and stores it as the
// package-level singleton retrievable via Get.
//
// This reads through the global viper package instance, not a private
// viper.New(), so that cmd/server.go's and cmd/client.go's
// viper.BindPFlag calls (bound against that same global instance at
// flag-registration time) actually take effect on Unmarshal, the same
// way the teacher's own cmd/*.go + internal/config wiring does.
func Init(path string) error {
	viper.SetConfigType("yaml")

	def := Default()
	viper.SetDefault("server", def.Server)
	viper.SetDefault("client", def.Client)
	viper.SetDefault("backend", def.Backend)
	viper.SetDefault("logging", def.Logging)

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("tx2tx")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "tx2tx"))
		}
		viper.AddConfigPath("/etc/tx2tx")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := Validate(loaded); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cfg = loaded
	return nil
}

// Validate enforces the invariants spec.md §9(c) requires at load time:
// every client position is one of west/east/north/south, and no two
// clients may be bound to the same position.
func Validate(c *Config) error {
	seen := make(map[string]string, 4)
	for _, cl := range c.Clients {
		if cl.Name == "" {
			return fmt.Errorf("client entry missing name")
		}
		switch cl.Position {
		case "west", "east", "north", "south":
		default:
			return fmt.Errorf("client %q: invalid position %q", cl.Name, cl.Position)
		}
		if prior, ok := seen[cl.Position]; ok {
			return fmt.Errorf("position %q is bound to both %q and %q", cl.Position, prior, cl.Name)
		}
		seen[cl.Position] = cl.Name
	}
	if c.Server.PollIntervalMS <= 0 {
		return fmt.Errorf("server.poll_interval_ms must be positive")
	}
	return nil
}

// Get returns the loaded configuration, or the built-in defaults if Init
// has not been called.
func Get() *Config {
	if cfg == nil {
		d := Default()
		return &d
	}
	return cfg
}

// PositionToClient returns the config-time mapping of position -> client
// name, used to resolve "the client bound to WEST" without scanning the
// slice on every lookup.
func (c *Config) PositionToClient() map[string]string {
	m := make(map[string]string, len(c.Clients))
	for _, cl := range c.Clients {
		m[cl.Position] = cl.Name
	}
	return m
}
