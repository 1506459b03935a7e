package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// History drivers.
const (
	HistoryMemory   = "memory"
	HistoryPostgres = "postgres"
	HistorySQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// BaseURL is the public origin used in room join links.
		BaseURL string `yaml:"baseURL"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	History struct {
		Driver string `yaml:"driver"`
	} `yaml:"history"`
}

// Load reads YAML config from path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, cfg.validate()
	case err != nil:
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

// HistoryDriver resolves the configured driver, defaulting to postgres when a database is set.
func (c Config) HistoryDriver() string {
	if c.History.Driver != "" {
		return c.History.Driver
	}
	if c.Postgres.URL != "" {
		return HistoryPostgres
	}
	return HistoryMemory
}

func (c Config) validate() error {
	switch c.HistoryDriver() {
	case HistoryMemory:
	case HistoryPostgres:
		if c.Postgres.URL == "" {
			return errors.New("history driver postgres needs postgres.url")
		}
	case HistorySQLite:
		if c.SQLite.Path == "" {
			return errors.New("history driver sqlite needs sqlite.path")
		}
	default:
		return fmt.Errorf("unknown history driver %q", c.History.Driver)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
