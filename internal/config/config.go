// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// ListenAddr is the address to listen on. Example: ":9300"
	ListenAddr string `env:"RELIEFMESH_LISTEN_ADDR"`

	Logging  LoggingConfig  `envPrefix:"RELIEFMESH_LOG_"`
	Store    StoreConfig    `envPrefix:"RELIEFMESH_STORE_"`
	Auth     AuthConfig     `envPrefix:"RELIEFMESH_AUTH_"`
	Realtime RealtimeConfig `envPrefix:"RELIEFMESH_REALTIME_"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is one of: trace, debug, info, warn, error.
	Level string `env:"LEVEL"`
}

// StoreConfig selects and configures the persistence driver.
type StoreConfig struct {
	// Driver is one of the registered store drivers: sqlite, memory.
	Driver string `env:"DRIVER"`

	// DataDir is where file-backed drivers keep their state.
	DataDir string `env:"DATA_DIR"`

	// Options are driver-specific settings, decoded by the driver itself.
	Options map[string]any `env:"-"`
}

// AuthConfig holds credential and session settings.
type AuthConfig struct {
	// OverseerUsername and OverseerPassword seed the bootstrap overseer
	// account on startup. The password is required on first run.
	OverseerUsername string `env:"OVERSEER_USERNAME"`
	OverseerPassword string `env:"OVERSEER_PASSWORD"`

	// BcryptCost for password hashing. 0 uses the library default.
	BcryptCost int `env:"BCRYPT_COST"`

	// SessionTTLMinutes bounds session lifetime.
	SessionTTLMinutes int `env:"SESSION_TTL_MINUTES"`
}

// SessionTTL returns the session lifetime as a duration.
func (a AuthConfig) SessionTTL() time.Duration {
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

// RealtimeConfig holds channel ticket settings.
type RealtimeConfig struct {
	// TicketSecret signs websocket join tickets. Required.
	TicketSecret string `env:"TICKET_SECRET"`

	// TicketTTLSeconds bounds ticket lifetime.
	TicketTTLSeconds int `env:"TICKET_TTL_SECONDS"`

	// ReplayLimit is the entries replayed on channel join.
	ReplayLimit int `env:"REPLAY_LIMIT"`
}

// TicketTTL returns the ticket lifetime as a duration.
func (r RealtimeConfig) TicketTTL() time.Duration {
	return time.Duration(r.TicketTTLSeconds) * time.Second
}

// Default returns the base configuration the file, environment, and flags
// overlay.
func Default() *Config {
	return &Config{
		ListenAddr: ":9300",
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".reliefmesh",
		},
		Auth: AuthConfig{
			OverseerUsername:  "overseer",
			SessionTTLMinutes: 720,
		},
		Realtime: RealtimeConfig{
			TicketTTLSeconds: 60,
			ReplayLimit:      100,
		},
	}
}

// Validate checks the assembled configuration. It runs after all overlays.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", c.Logging.Level)
	}

	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of sqlite, memory", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir must not be empty for the sqlite driver")
	}

	if c.Auth.OverseerUsername == "" {
		return fmt.Errorf("auth.overseer_username must not be empty")
	}
	if c.Auth.BcryptCost < 0 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("invalid auth.bcrypt_cost %d", c.Auth.BcryptCost)
	}
	if c.Auth.SessionTTLMinutes <= 0 {
		return fmt.Errorf("auth.session_ttl_minutes must be positive")
	}

	if c.Realtime.TicketSecret == "" {
		return fmt.Errorf("realtime.ticket_secret must be set")
	}
	if c.Realtime.TicketTTLSeconds <= 0 {
		return fmt.Errorf("realtime.ticket_ttl_seconds must be positive")
	}
	if c.Realtime.ReplayLimit <= 0 || c.Realtime.ReplayLimit > 100 {
		return fmt.Errorf("realtime.replay_limit must be between 1 and 100")
	}

	return nil
}

// Redacted returns a copy safe for logging: secrets are masked, never
// removed, so their presence still shows in startup logs.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Auth.OverseerPassword != "" {
		out.Auth.OverseerPassword = "***"
	}
	if out.Realtime.TicketSecret != "" {
		out.Realtime.TicketSecret = "***"
	}
	return &out
}
