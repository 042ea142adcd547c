package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the server configuration, loadable from an HCL file with
// environment overrides applied by the CLI layer.
type Config struct {
	Server ServerSettings
	Rooms  RoomDefaults
	Bots   BotSettings
}

// ServerSettings contains process-level configuration.
type ServerSettings struct {
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// RoomDefaults applies to rooms created without explicit overrides.
type RoomDefaults struct {
	MinPlayers    int `hcl:"min_players,optional"`
	MaxPlayers    int `hcl:"max_players,optional"`
	RoundCount    int `hcl:"round_count,optional"`
	TurnTimeoutMS int `hcl:"turn_timeout_ms,optional"`
	MatchmakeSize int `hcl:"matchmake_size,optional"`
}

// BotSettings configures the bot pipeline. StrategyParams is an opaque JSON
// object forwarded to the remote strategy on every request.
type BotSettings struct {
	DelayMS        int    `hcl:"delay_ms,optional"`
	RemoteURL      string `hcl:"remote_url,optional"`
	RemoteTimeout  int    `hcl:"remote_timeout_ms,optional"`
	StrategyType   string `hcl:"strategy_type,optional"`
	StrategyParams string `hcl:"strategy_params,optional"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Host:     "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Rooms: RoomDefaults{
			MinPlayers:    2,
			MaxPlayers:    6,
			RoundCount:    10,
			TurnTimeoutMS: 30000,
			MatchmakeSize: 4,
		},
		Bots: BotSettings{
			DelayMS:       500,
			RemoteTimeout: 2000,
		},
	}
}

// configFile mirrors Config with optional blocks so a partial file only
// overrides what it names.
type configFile struct {
	Server *ServerSettings `hcl:"server,block"`
	Rooms  *RoomDefaults   `hcl:"rooms,block"`
	Bots   *BotSettings    `hcl:"bots,block"`
}

// LoadConfig loads configuration from an HCL file, falling back to defaults
// when the file does not exist. Unset values keep their defaults.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return config, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var parsed configFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if b := parsed.Server; b != nil {
		if b.Host != "" {
			config.Server.Host = b.Host
		}
		if b.Port != 0 {
			config.Server.Port = b.Port
		}
		if b.LogLevel != "" {
			config.Server.LogLevel = b.LogLevel
		}
	}
	if b := parsed.Rooms; b != nil {
		if b.MinPlayers != 0 {
			config.Rooms.MinPlayers = b.MinPlayers
		}
		if b.MaxPlayers != 0 {
			config.Rooms.MaxPlayers = b.MaxPlayers
		}
		if b.RoundCount != 0 {
			config.Rooms.RoundCount = b.RoundCount
		}
		if b.TurnTimeoutMS != 0 {
			config.Rooms.TurnTimeoutMS = b.TurnTimeoutMS
		}
		if b.MatchmakeSize != 0 {
			config.Rooms.MatchmakeSize = b.MatchmakeSize
		}
	}
	if b := parsed.Bots; b != nil {
		if b.DelayMS != 0 {
			config.Bots.DelayMS = b.DelayMS
		}
		if b.RemoteURL != "" {
			config.Bots.RemoteURL = b.RemoteURL
		}
		if b.RemoteTimeout != 0 {
			config.Bots.RemoteTimeout = b.RemoteTimeout
		}
		if b.StrategyType != "" {
			config.Bots.StrategyType = b.StrategyType
		}
		if b.StrategyParams != "" {
			config.Bots.StrategyParams = b.StrategyParams
		}
	}

	return config, nil
}

// Validate checks the configuration for values a server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Rooms.MinPlayers < 2 {
		return fmt.Errorf("rooms: min players must be at least 2, got %d", c.Rooms.MinPlayers)
	}
	if c.Rooms.MaxPlayers < c.Rooms.MinPlayers {
		return fmt.Errorf("rooms: max players %d below min players %d", c.Rooms.MaxPlayers, c.Rooms.MinPlayers)
	}
	if c.Rooms.RoundCount < 1 {
		return fmt.Errorf("rooms: round count must be positive, got %d", c.Rooms.RoundCount)
	}
	if c.Rooms.MatchmakeSize < c.Rooms.MinPlayers || c.Rooms.MatchmakeSize > c.Rooms.MaxPlayers {
		return fmt.Errorf("rooms: matchmake size %d outside %d..%d",
			c.Rooms.MatchmakeSize, c.Rooms.MinPlayers, c.Rooms.MaxPlayers)
	}
	return nil
}

// ListenAddress returns the host:port the server binds.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TurnTimeout returns the human turn timeout as a duration.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.Rooms.TurnTimeoutMS) * time.Millisecond
}

// BotDelay returns the bot wakeup delay as a duration.
func (c *Config) BotDelay() time.Duration {
	return time.Duration(c.Bots.DelayMS) * time.Millisecond
}
