package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults for the coordinator's listeners and channel capacities.
const (
	DefaultRPCAddr = "0.0.0.0:50051"
	DefaultAPIAddr = "0.0.0.0:3000"

	// DefaultCommandBusCapacity sizes the process-wide command bus.
	// Every session sees every message, so it is sized generously.
	DefaultCommandBusCapacity = 2048
	// DefaultEventBusCapacity bounds each node's event bus; observers
	// that fall behind lose messages rather than stall the node.
	DefaultEventBusCapacity = 1024
	// DefaultOutboundCapacity bounds each session's outbound channel.
	DefaultOutboundCapacity = 32
)

// Config is the coordinator's configuration, loadable from a YAML file
// with environment-variable overrides on top.
type Config struct {
	RPC struct {
		Addr string `yaml:"addr"`
	} `yaml:"rpc"`
	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`
	Channels struct {
		CommandBus int `yaml:"command_bus"`
		EventBus   int `yaml:"event_bus"`
		Outbound   int `yaml:"outbound"`
	} `yaml:"channels"`
	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	cfg.RPC.Addr = DefaultRPCAddr
	cfg.API.Addr = DefaultAPIAddr
	cfg.Channels.CommandBus = DefaultCommandBusCapacity
	cfg.Channels.EventBus = DefaultEventBusCapacity
	cfg.Channels.Outbound = DefaultOutboundCapacity
	cfg.Log.Level = "info"
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides addresses from the environment. Flags beat env;
// callers apply env first and then explicit flags.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DOCKHAND_RPC_ADDR"); v != "" {
		c.RPC.Addr = v
	}
	if v := os.Getenv("DOCKHAND_API_ADDR"); v != "" {
		c.API.Addr = v
	}
}
