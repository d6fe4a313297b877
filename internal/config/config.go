// Package config loads the service configuration from a YAML file with
// environment variable overrides for secrets and deploy-time knobs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	APIKey   string         `yaml:"api_key"`
	Database DatabaseConfig `yaml:"database"`
	RPC      RPCConfig      `yaml:"rpc"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RPCConfig controls the chain endpoint and fetch retry behaviour.
type RPCConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
}

// MonitorConfig controls one monitoring run.
type MonitorConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// NotifyConfig controls the notification fan-out.
type NotifyConfig struct {
	PreviewLimit     int           `yaml:"preview_limit"`
	Concurrency      int           `yaml:"concurrency"`
	DeliveryDelay    time.Duration `yaml:"delivery_delay"`
	TelegramBotToken string        `yaml:"telegram_bot_token"`
}

// LoadFile reads a YAML configuration file, applies environment
// overrides, then defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Load builds a configuration from environment variables and defaults
// only, for deployments without a config file.
func Load() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

// Secrets and endpoints come from the environment in production, so
// they stay out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("IDLWATCH_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("IDLWATCH_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("IDLWATCH_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("IDLWATCH_RPC_ENDPOINT"); v != "" {
		c.RPC.Endpoint = v
	}
	if v := os.Getenv("IDLWATCH_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notify.TelegramBotToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "idlwatch.db"
	}
	if c.RPC.Endpoint == "" {
		c.RPC.Endpoint = "https://api.mainnet-beta.solana.com"
	}
	if c.RPC.MaxAttempts <= 0 {
		c.RPC.MaxAttempts = 3
	}
	if c.RPC.BaseBackoff <= 0 {
		c.RPC.BaseBackoff = 500 * time.Millisecond
	}
	if c.Monitor.Concurrency <= 0 {
		c.Monitor.Concurrency = 10
	}
	if c.Notify.PreviewLimit <= 0 {
		c.Notify.PreviewLimit = 5
	}
	if c.Notify.Concurrency <= 0 {
		c.Notify.Concurrency = 5
	}
	if c.Notify.DeliveryDelay <= 0 {
		c.Notify.DeliveryDelay = 200 * time.Millisecond
	}
}
