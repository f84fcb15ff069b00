/*
config.go - Configuration for the server and the ticker

PURPOSE:
  Loads a YAML file, applies YIELD_* environment overrides, then fills
  defaults. Command-line flags in cmd/ override the result.

FILE FORMAT:

	server:
	  port: 8080
	  db_path: yield.db
	  cors_origins: ["http://localhost:5173"]
	  maturity_interval: 1h
	engine:
	  timezone: Africa/Johannesburg
	  rates_file: rates.yaml
	ticker:
	  backend_url: http://localhost:8080/api
	  token: secret
	  user_id: investor-1
	  tick_interval: 1s
	  sync_interval: 5m

A missing file is not an error; every field has a default except the
ticker's backend_url and user_id.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/warp/yield-engine/generic"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port             int           `yaml:"port"`
		DBPath           string        `yaml:"db_path"`
		CORSOrigins      []string      `yaml:"cors_origins"`
		MaturityInterval time.Duration `yaml:"maturity_interval"`
	} `yaml:"server"`
	Engine struct {
		Timezone  string `yaml:"timezone"`
		RatesFile string `yaml:"rates_file"`
	} `yaml:"engine"`
	Ticker struct {
		BackendURL   string        `yaml:"backend_url"`
		Token        string        `yaml:"token"`
		UserID       string        `yaml:"user_id"`
		TickInterval time.Duration `yaml:"tick_interval"`
		SyncInterval time.Duration `yaml:"sync_interval"`
	} `yaml:"ticker"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Environment variable overrides
	if v := os.Getenv("YIELD_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("YIELD_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("YIELD_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("YIELD_TIMEZONE"); v != "" {
		cfg.Engine.Timezone = v
	}
	if v := os.Getenv("YIELD_RATES_FILE"); v != "" {
		cfg.Engine.RatesFile = v
	}
	if v := os.Getenv("YIELD_BACKEND_URL"); v != "" {
		cfg.Ticker.BackendURL = v
	}
	if v := os.Getenv("YIELD_TOKEN"); v != "" {
		cfg.Ticker.Token = v
	}
	if v := os.Getenv("YIELD_USER_ID"); v != "" {
		cfg.Ticker.UserID = v
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = "yield.db"
	}
	if cfg.Server.MaturityInterval == 0 {
		cfg.Server.MaturityInterval = time.Hour
	}
	if cfg.Engine.Timezone == "" {
		cfg.Engine.Timezone = "UTC"
	}
	if cfg.Ticker.TickInterval == 0 {
		cfg.Ticker.TickInterval = time.Second
	}
	if cfg.Ticker.SyncInterval == 0 {
		cfg.Ticker.SyncInterval = 5 * time.Minute
	}

	return cfg, nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return generic.LoadLocation(c.Engine.Timezone)
}

// Validate checks the fields the server needs.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaturityInterval < time.Minute {
		return fmt.Errorf("server.maturity_interval must be at least 1m")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	return nil
}

// ValidateTicker checks the fields the ticker needs.
func (c *Config) ValidateTicker() error {
	if c.Ticker.BackendURL == "" {
		return fmt.Errorf("ticker.backend_url is required")
	}
	if c.Ticker.UserID == "" {
		return fmt.Errorf("ticker.user_id is required")
	}
	if c.Ticker.TickInterval < time.Second {
		return fmt.Errorf("ticker.tick_interval must be at least 1s")
	}
	if c.Ticker.SyncInterval < c.Ticker.TickInterval {
		return fmt.Errorf("ticker.sync_interval must not be shorter than tick_interval")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	return nil
}
