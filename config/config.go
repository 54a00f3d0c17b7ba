package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"bookingledger/crypto"
)

// Telemetry holds the OpenTelemetry export settings. Export stays disabled
// until an endpoint is configured.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

type Config struct {
	RPCAddress   string    `toml:"RPCAddress"`
	DataDir      string    `toml:"DataDir"`
	NetworkName  string    `toml:"NetworkName"`
	AgentKeyPath string    `toml:"AgentKeyPath"`
	Telemetry    Telemetry `toml:"Telemetry"`
}

// Load reads the configuration at path, creating a default file (and a fresh
// agent key) when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(path, cfg)
	if err := ensureAgentKey(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for fields the daemon cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir is required")
	}
	if strings.TrimSpace(c.AgentKeyPath) == "" {
		return fmt.Errorf("config: AgentKeyPath is required")
	}
	return nil
}

func applyDefaults(path string, cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join(filepath.Dir(path), "ledger-data")
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "bookingledger-local"
	}
	if strings.TrimSpace(cfg.AgentKeyPath) == "" {
		cfg.AgentKeyPath = filepath.Join(filepath.Dir(path), "agent.key")
	}
}

// ensureAgentKey generates and saves a fresh agent key when the configured
// key file does not exist yet.
func ensureAgentKey(cfg *Config) error {
	if _, err := os.Stat(cfg.AgentKeyPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	return crypto.SaveKey(cfg.AgentKeyPath, key)
}

// createDefault writes a default configuration file alongside a fresh agent
// key and returns the resulting configuration.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(path, cfg)
	if err := ensureAgentKey(cfg); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
