package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional). If provided
	// but the file is missing or invalid, loading fails.
	ConfigPath string

	// FlagOverrides are CLI flag values that override everything else.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g. undecoded keys). If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override file and environment
// values. Nil or empty means unset.
type FlagOverrides struct {
	ListenAddr       *string
	LogLevel         *string
	StoreDriver      *string
	StoreDataDir     *string
	OverseerUsername *string
	OverseerPassword *string
}

// fileConfig mirrors Config with pointer sections to detect presence.
type fileConfig struct {
	ListenAddr string `toml:"listen_addr"`

	Logging  *loggingFile  `toml:"logging"`
	Store    *storeFile    `toml:"store"`
	Auth     *authFile     `toml:"auth"`
	Realtime *realtimeFile `toml:"realtime"`
}

type loggingFile struct {
	Level string `toml:"level"`
}

type storeFile struct {
	Driver  string         `toml:"driver"`
	DataDir string         `toml:"data_dir"`
	Options map[string]any `toml:"options"`
}

type authFile struct {
	OverseerUsername  string `toml:"overseer_username"`
	OverseerPassword  string `toml:"overseer_password"`
	BcryptCost        int    `toml:"bcrypt_cost"`
	SessionTTLMinutes int    `toml:"session_ttl_minutes"`
}

type realtimeFile struct {
	TicketSecret     string `toml:"ticket_secret"`
	TicketTTLSeconds int    `toml:"ticket_ttl_seconds"`
	ReplayLimit      int    `toml:"replay_limit"`
}

// Load assembles configuration with the following precedence, lowest first:
//
//  1. built-in defaults
//  2. TOML config file values
//  3. RELIEFMESH_* environment variables
//  4. CLI flags
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown TOML keys produce a
// warning but do not fail the load. Validate runs after all overlays.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Default()

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		var fc fileConfig
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
		overlayFile(cfg, &fc)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile applies TOML file values onto cfg.
func overlayFile(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		if len(fc.Store.Options) > 0 {
			cfg.Store.Options = fc.Store.Options
		}
	}

	if fc.Auth != nil {
		if fc.Auth.OverseerUsername != "" {
			cfg.Auth.OverseerUsername = fc.Auth.OverseerUsername
		}
		if fc.Auth.OverseerPassword != "" {
			cfg.Auth.OverseerPassword = fc.Auth.OverseerPassword
		}
		if fc.Auth.BcryptCost != 0 {
			cfg.Auth.BcryptCost = fc.Auth.BcryptCost
		}
		if fc.Auth.SessionTTLMinutes != 0 {
			cfg.Auth.SessionTTLMinutes = fc.Auth.SessionTTLMinutes
		}
	}

	if fc.Realtime != nil {
		if fc.Realtime.TicketSecret != "" {
			cfg.Realtime.TicketSecret = fc.Realtime.TicketSecret
		}
		if fc.Realtime.TicketTTLSeconds != 0 {
			cfg.Realtime.TicketTTLSeconds = fc.Realtime.TicketTTLSeconds
		}
		if fc.Realtime.ReplayLimit != 0 {
			cfg.Realtime.ReplayLimit = fc.Realtime.ReplayLimit
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.LogLevel != nil && *f.LogLevel != "" {
		cfg.Logging.Level = *f.LogLevel
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.StoreDataDir != nil && *f.StoreDataDir != "" {
		cfg.Store.DataDir = *f.StoreDataDir
	}
	if f.OverseerUsername != nil && *f.OverseerUsername != "" {
		cfg.Auth.OverseerUsername = *f.OverseerUsername
	}
	if f.OverseerPassword != nil && *f.OverseerPassword != "" {
		cfg.Auth.OverseerPassword = *f.OverseerPassword
	}
}
