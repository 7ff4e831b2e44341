package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"reentry-engine-go/infrastructure/logger"
	"reentry-engine-go/internal/policy"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string        `yaml:"env"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Engine  EngineConfig  `yaml:"engine"`
	Log     logger.Config `yaml:"log"`
	Policy  PolicyConfig  `yaml:"policy"`
}

type ServerConfig struct {
	ListenAddr     string `yaml:"listenAddr"`
	ProductionMode bool   `yaml:"productionMode"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the metrics endpoint
}

// BridgeConfig points at the terminal bridge that fronts the trading
// terminal.
type BridgeConfig struct {
	BaseURL     string   `yaml:"baseURL"`
	APIKey      string   `yaml:"apiKey"`
	WSEndpoint  string   `yaml:"wsEndpoint"`  // tick stream, optional
	TickSymbols []string `yaml:"tickSymbols"` // symbols subscribed on the stream
	RateLimit   float64  `yaml:"rateLimit"`   // requests per second
	RateBurst   int      `yaml:"rateBurst"`
}

type EngineConfig struct {
	DiscoveryIntervalMs int    `yaml:"discoveryIntervalMs"`
	PollIntervalMs      int    `yaml:"pollIntervalMs"`
	ClosureConfirms     int    `yaml:"closureConfirms"`
	Deviation           int    `yaml:"deviation"`
	Magic               int64  `yaml:"magic"`
	Comment             string `yaml:"comment"`
	DryRun              bool   `yaml:"dryRun"`
	AutoStart           bool   `yaml:"autoStart"`
}

// PolicyConfig 重入策略：全局默认值加按品种覆盖。
type PolicyConfig struct {
	Defaults policy.Settings            `yaml:"defaults"`
	Symbols  map[string]policy.Settings `yaml:"symbols"`
}

// DiscoveryInterval converts the millisecond field, zero means "use the
// engine default".
func (e EngineConfig) DiscoveryInterval() time.Duration {
	return time.Duration(e.DiscoveryIntervalMs) * time.Millisecond
}

func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMs) * time.Millisecond
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("REENTRY_BRIDGE_API_KEY"); v != "" {
		cfg.Bridge.APIKey = v
	}
	if v := os.Getenv("REENTRY_BRIDGE_BASE_URL"); v != "" {
		cfg.Bridge.BaseURL = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
	if cfg.Policy.Defaults.Mode == "" {
		cfg.Policy.Defaults = policy.DefaultSettings()
	}
	if cfg.Bridge.RateLimit <= 0 {
		cfg.Bridge.RateLimit = 10
	}
	if cfg.Bridge.RateBurst <= 0 {
		cfg.Bridge.RateBurst = 20
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Bridge.BaseURL == "" {
		return errors.New("bridge.baseURL is required (or env override)")
	}
	if cfg.Engine.DiscoveryIntervalMs < 0 || cfg.Engine.PollIntervalMs < 0 {
		return errors.New("engine intervals must be >= 0")
	}
	if cfg.Engine.ClosureConfirms < 0 {
		return errors.New("engine.closureConfirms must be >= 0")
	}
	if err := cfg.Policy.Defaults.Validate(); err != nil {
		return fmt.Errorf("policy.defaults: %w", err)
	}
	for sym, s := range cfg.Policy.Symbols {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("policy.symbols.%s: %w", sym, err)
		}
	}
	return nil
}
