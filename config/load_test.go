package config

import (
	"os"
	"path/filepath"
	"testing"

	"reentry-engine-go/internal/policy"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validConfig = `
env: dev
server:
  listenAddr: ":8088"
bridge:
  baseURL: http://127.0.0.1:5001
  apiKey: file-key
  tickSymbols: [EURUSD, XAUUSD]
engine:
  discoveryIntervalMs: 1000
  pollIntervalMs: 500
policy:
  defaults:
    mode: AUTOMATIC
    adjustWaitSec: 5
    adjustPct: 50
    pipDistance: 20
  symbols:
    XAUUSD:
      mode: MANUAL
      adjustWaitSec: 5
      adjustPct: 50
      pipDistance: 50
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "dev" || cfg.Bridge.APIKey != "file-key" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	if cfg.Server.ListenAddr != ":8088" {
		t.Fatalf("unexpected listen addr: %s", cfg.Server.ListenAddr)
	}
	if cfg.Policy.Symbols["XAUUSD"].Mode != policy.ModeManual {
		t.Fatalf("symbol override not parsed: %+v", cfg.Policy.Symbols)
	}
	if cfg.Engine.PollInterval().Milliseconds() != 500 {
		t.Fatalf("unexpected poll interval: %v", cfg.Engine.PollInterval())
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
bridge:
  baseURL: http://127.0.0.1:5001
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Fatalf("default listen addr not applied: %s", cfg.Server.ListenAddr)
	}
	if cfg.Policy.Defaults.Mode != policy.ModeAutomatic {
		t.Fatalf("default policy not applied: %+v", cfg.Policy.Defaults)
	}
	if cfg.Log.Level == "" {
		t.Fatalf("default log config not applied")
	}
	if cfg.Bridge.RateLimit <= 0 || cfg.Bridge.RateBurst <= 0 {
		t.Fatalf("default rate limits not applied: %+v", cfg.Bridge)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	t.Setenv("REENTRY_BRIDGE_API_KEY", "env-key")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bridge.APIKey != "env-key" {
		t.Fatalf("env override not applied: %+v", cfg.Bridge)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(AppConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}

	path := writeTempConfig(t, `
env: dev
bridge:
  baseURL: http://127.0.0.1:5001
policy:
  defaults:
    mode: SOMETIMES
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for bad policy mode")
	}
}
