package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reliefmesh.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimal = `
[realtime]
ticket_secret = "file-secret"
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigPath: writeConfig(t, minimal)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9300" || cfg.Logging.Level != "info" || cfg.Store.Driver != "sqlite" {
		t.Errorf("defaults: %+v", cfg)
	}
	if cfg.Realtime.ReplayLimit != 100 {
		t.Errorf("replay limit = %d", cfg.Realtime.ReplayLimit)
	}
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
listen_addr = ":8080"

[logging]
level = "debug"

[store]
driver = "memory"

[store.options]
journal_mode = "DELETE"

[auth]
overseer_username = "chief"
overseer_password = "hunter2"
session_ttl_minutes = 60

[realtime]
ticket_secret = "file-secret"
ticket_ttl_seconds = 30
`)
	cfg, err := Load(LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.Logging.Level != "debug" || cfg.Store.Driver != "memory" {
		t.Errorf("file overlay: %+v", cfg)
	}
	if cfg.Store.Options["journal_mode"] != "DELETE" {
		t.Errorf("options = %v", cfg.Store.Options)
	}
	if cfg.Auth.OverseerUsername != "chief" || cfg.Auth.SessionTTLMinutes != 60 {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Realtime.TicketTTLSeconds != 30 {
		t.Errorf("realtime = %+v", cfg.Realtime)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("RELIEFMESH_LISTEN_ADDR", ":7000")
	t.Setenv("RELIEFMESH_LOG_LEVEL", "warn")
	t.Setenv("RELIEFMESH_REALTIME_TICKET_SECRET", "env-secret")

	cfg, err := Load(LoaderOptions{ConfigPath: writeConfig(t, minimal)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7000" || cfg.Logging.Level != "warn" {
		t.Errorf("env overlay: %+v", cfg)
	}
	if cfg.Realtime.TicketSecret != "env-secret" {
		t.Errorf("ticket secret = %q", cfg.Realtime.TicketSecret)
	}
}

func TestLoadFlagsWinOverEnv(t *testing.T) {
	t.Setenv("RELIEFMESH_LISTEN_ADDR", ":7000")
	addr := ":6000"
	driver := "memory"

	cfg, err := Load(LoaderOptions{
		ConfigPath: writeConfig(t, minimal),
		FlagOverrides: FlagOverrides{
			ListenAddr:  &addr,
			StoreDriver: &driver,
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":6000" || cfg.Store.Driver != "memory" {
		t.Errorf("flag overlay: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing ticket secret", ``, "ticket_secret"},
		{"bad driver", minimal + "\n[store]\ndriver = \"postgres\"\n", "store.driver"},
		{"bad level", minimal + "\n[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"bad replay", "[realtime]\nticket_secret = \"s\"\nreplay_limit = 500\n", "replay_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(LoaderOptions{ConfigPath: writeConfig(t, tt.body)})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(LoaderOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.toml")}); err == nil {
		t.Fatal("missing config file accepted")
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Auth.OverseerPassword = "hunter2"
	cfg.Realtime.TicketSecret = "topsecret"

	red := cfg.Redacted()
	if red.Auth.OverseerPassword != "***" || red.Realtime.TicketSecret != "***" {
		t.Errorf("redacted: %+v", red)
	}
	// The original is untouched.
	if cfg.Auth.OverseerPassword != "hunter2" {
		t.Errorf("original mutated")
	}
}
