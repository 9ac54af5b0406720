// Package config loads crq settings from CRQ_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/alexanderramin/crq/internal/domain"
)

const envPrefix = "CRQ_"

type Config struct {
	// DBPath defaults to ~/.crq/crq.db.
	DBPath string `env:"DB"`
	// User is the acting username when --as is not given.
	User string `env:"USER"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text"`
	LogUseCases bool   `env:"LOG_USE_CASES" envDefault:"false"`

	RequireSupervisorApprovalForCAB bool `env:"REQUIRE_SUPERVISOR_APPROVAL_FOR_CAB" envDefault:"true"`
	SupervisorChainLimit            int  `env:"SUPERVISOR_CHAIN_LIMIT" envDefault:"64"`

	// MetricsAddr enables the Prometheus listener when set, e.g. ":9464".
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads environ instead of the process environment when non-nil.
func LoadFrom(environ map[string]string) (*Config, error) {
	c := &Config{}
	opts := env.Options{Prefix: envPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) normalize() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid %sLOG_FORMAT=%q (expected text|json)", envPrefix, c.LogFormat)
	}
	if c.SupervisorChainLimit <= 0 {
		return fmt.Errorf("invalid %sSUPERVISOR_CHAIN_LIMIT=%d (must be positive)", envPrefix, c.SupervisorChainLimit)
	}

	if c.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		c.DBPath = filepath.Join(home, ".crq", "crq.db")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %sLOG_LEVEL=%q (expected debug|info|warn|error)", envPrefix, s)
	}
}

// Policy is the transition policy selected by the configuration.
func (c *Config) Policy() domain.Policy {
	return domain.Policy{RequireSupervisorApprovalForCAB: c.RequireSupervisorApprovalForCAB}
}

// Logger builds the slog logger described by LogLevel and LogFormat.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
