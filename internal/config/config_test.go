package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "room:\n  maxParticipants: 20\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Store.Driver != DriverMemory || cfg.Quiz.Source != "static" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Logging.Env != "dev" || cfg.Logging.Level != "info" {
		t.Fatalf("logging defaults not applied: %+v", cfg.Logging)
	}
	if cfg.Room.MaxParticipants != 20 {
		t.Fatalf("expected maxParticipants 20, got %d", cfg.Room.MaxParticipants)
	}
}

func TestLoadRejectsBadSettings(t *testing.T) {
	cases := map[string]string{
		"unknown driver":     "store:\n  driver: cassandra\n",
		"redis without addr": "store:\n  driver: redis\n",
		"postgres quiz src":  "quiz:\n  source: postgres\n",
		"bad duration":       "room:\n  retention: tomorrow\n",
		"negative limit":     "room:\n  maxRetries: -1\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: got %s", got)
	}
	if got := TTLDuration("garbage", time.Minute); got != time.Minute {
		t.Fatalf("garbage: got %s", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("90s: got %s", got)
	}
}
